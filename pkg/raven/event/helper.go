package event

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/ZhanJunLiau/raven-go/pkg/raven/observability"
)

// Helper enriches a Builder before the event is built.
type Helper interface {
	Enrich(b *Builder)
}

// HelperFunc adapts a function to the Helper interface.
type HelperFunc func(b *Builder)

// Enrich implements Helper.
func (f HelperFunc) Enrich(b *Builder) {
	f(b)
}

// Named is implemented by helpers that want a readable name in logs.
type Named interface {
	Name() string
}

// HelperName returns h's Name() when it has one, otherwise its type.
func HelperName(h Helper) string {
	if n, ok := h.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", h)
}

// HelperChain is an ordered, concurrency-safe list of helpers.
type HelperChain struct {
	mu      sync.RWMutex
	helpers []Helper
	logger  *slog.Logger
}

// NewHelperChain returns a chain holding helpers in the given order.
// Nil helpers are skipped.
func NewHelperChain(helpers ...Helper) *HelperChain {
	c := &HelperChain{}
	for _, h := range helpers {
		c.Add(h)
	}
	return c
}

// SetLogger sets the logger used to report panicking helpers.
// A nil logger falls back to slog.Default().
func (c *HelperChain) SetLogger(logger *slog.Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

// Add appends h to the chain. Nil helpers are ignored.
func (c *HelperChain) Add(h Helper) {
	if h == nil {
		return
	}
	c.mu.Lock()
	c.helpers = append(c.helpers, h)
	c.mu.Unlock()
}

// Helpers returns a copy of the registered helpers in order.
func (c *HelperChain) Helpers() []Helper {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.helpers)
}

// Len returns the number of registered helpers.
func (c *HelperChain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.helpers)
}

// Apply runs every helper against b in registration order.
// Helpers added while Apply runs take effect on the next call.
func (c *HelperChain) Apply(b *Builder) {
	c.mu.RLock()
	helpers := slices.Clone(c.helpers)
	logger := c.logger
	c.mu.RUnlock()

	if logger == nil {
		logger = slog.Default()
	}
	for _, h := range helpers {
		runHelper(h, b, logger)
	}
}

func runHelper(h Helper, b *Builder, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			observability.LogHelperPanic(logger, HelperName(h), r)
		}
	}()
	h.Enrich(b)
}
