// Package registry provides a generic thread-safe registry for values indexed by key.
//
// Unlike a plain map, Registry remembers the order in which keys were first
// registered. That order is what the client factory registry uses for
// precedence, so it is part of the contract: Keys and Range always walk
// entries in registration order, and re-registering a key replaces its value
// without moving it.
//
// # Basic Usage
//
//	r := registry.New[string, int]()
//	r.Register("one", 1)
//	r.Register("two", 2)
//
//	value, ok := r.Get("one")
//	if ok {
//	    fmt.Println(value) // Output: 1
//	}
//
// # Factory Pattern
//
// Registries work well for factory tables keyed by name:
//
//	type SenderConstructor func(d *dsn.DSN) (transport.Sender, error)
//
//	senders := registry.New[string, SenderConstructor]()
//	senders.Register("https", newHTTPSender)
//	senders.Register("log", newLogSender)
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. Range iterates over a
// snapshot, allowing mutations during iteration without affecting the
// iteration itself.
package registry
