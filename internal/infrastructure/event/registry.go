package event

import (
	"strings"
	"sync"

	"github.com/erp/ledger/internal/domain/shared"
)

// HandlerRegistry manages event handler registrations. A registration key is
// either an exact event type or a prefix pattern ending in ".*", so
// "finance.document.*" matches every document lifecycle event.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string][]shared.EventHandler // eventType -> handlers
	prefixes map[string][]shared.EventHandler // "finance.document." -> handlers
	wildcard []shared.EventHandler            // handlers for all events
}

// NewHandlerRegistry creates a new handler registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string][]shared.EventHandler),
		prefixes: make(map[string][]shared.EventHandler),
	}
}

// Register adds a handler for specific event types or patterns.
// If no event types are provided, the handler receives all events.
func (r *HandlerRegistry) Register(handler shared.EventHandler, eventTypes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(eventTypes) == 0 {
		r.wildcard = append(r.wildcard, handler)
		return
	}

	for _, eventType := range eventTypes {
		switch {
		case eventType == "*":
			r.wildcard = append(r.wildcard, handler)
		case strings.HasSuffix(eventType, ".*"):
			prefix := strings.TrimSuffix(eventType, "*")
			r.prefixes[prefix] = append(r.prefixes[prefix], handler)
		default:
			r.handlers[eventType] = append(r.handlers[eventType], handler)
		}
	}
}

// Unregister removes a handler from all registrations
func (r *HandlerRegistry) Unregister(handler shared.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.wildcard = removeHandler(r.wildcard, handler)
	pruneHandler(r.handlers, handler)
	pruneHandler(r.prefixes, handler)
}

// GetHandlers returns every handler interested in eventType, each at most once
func (r *HandlerRegistry) GetHandlers(eventType string) []shared.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[shared.EventHandler]bool)
	result := make([]shared.EventHandler, 0, len(r.handlers[eventType])+len(r.wildcard))
	add := func(hs []shared.EventHandler) {
		for _, h := range hs {
			if !seen[h] {
				seen[h] = true
				result = append(result, h)
			}
		}
	}

	add(r.handlers[eventType])
	for prefix, hs := range r.prefixes {
		if strings.HasPrefix(eventType, prefix) {
			add(hs)
		}
	}
	add(r.wildcard)
	return result
}

// Len returns the number of distinct registered handlers
func (r *HandlerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[shared.EventHandler]bool)
	for _, h := range r.wildcard {
		seen[h] = true
	}
	for _, m := range []map[string][]shared.EventHandler{r.handlers, r.prefixes} {
		for _, hs := range m {
			for _, h := range hs {
				seen[h] = true
			}
		}
	}
	return len(seen)
}

func pruneHandler(m map[string][]shared.EventHandler, handler shared.EventHandler) {
	for key, handlers := range m {
		m[key] = removeHandler(handlers, handler)
		if len(m[key]) == 0 {
			delete(m, key)
		}
	}
}

// removeHandler removes a handler from a slice of handlers
func removeHandler(handlers []shared.EventHandler, target shared.EventHandler) []shared.EventHandler {
	result := make([]shared.EventHandler, 0, len(handlers))
	for _, h := range handlers {
		if h != target {
			result = append(result, h)
		}
	}
	return result
}
