// Package event defines the events a client reports and the helpers that
// enrich them before they are queued.
//
// # Overview
//
// An Event is an immutable snapshot of an error or message: identity,
// timestamp, severity, free-form tags and extra data, and the chain of
// exceptions that caused it. Events are produced by a Builder, which is a
// mutable accumulator owned by a single capture call:
//
//	evt := event.NewBuilder().
//	    WithMessage("payment declined").
//	    WithLevel(event.LevelWarning).
//	    WithTag("customer", "c-42").
//	    Build()
//
// Build fills in the defaults: a 32 character hex ID, the current UTC time,
// LevelError and the "go" platform.
//
// # Errors
//
// WithError walks the errors.Unwrap chain and records one Exception per
// link, innermost first, the order the collector expects. The outermost
// exception carries the stack captured at the call site.
//
// # Helpers
//
// A Helper mutates a Builder before it is built. Helpers are collected in a
// HelperChain and applied synchronously, in registration order:
//
//	chain := event.NewHelperChain(
//	    event.HostnameHelper{},
//	    event.StaticTags{"region": "eu-west-1"},
//	)
//	chain.Apply(b)
//
// Helpers should check the Builder's readers (Tag, ServerName, Release)
// before writing so they do not override values set by the caller. A
// panicking helper is recovered, logged and skipped; the remaining helpers
// still run.
//
// # Wire Format
//
// Payload is the JSON shape sent to the collector. Event.MarshalJSON encodes
// it with github.com/goccy/go-json.
//
// # Thread Safety
//
// Events are safe for concurrent readers; every accessor returning a map or
// slice returns a copy. Builders are not safe for concurrent use. HelperChain
// is safe for concurrent Add and Apply.
package event
