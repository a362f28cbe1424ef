// Package component provides the minimal host UI-component contract the
// player adapter plugs into: root-element ownership, document entry
// state, an ordered event dispatcher and idempotent disposal.
package component

import (
	"sync"

	"go2tv.app/embedplayer/internal/dom"
)

type subscriber struct {
	fn      func()
	once    bool
	removed bool
}

// Base carries the lifecycle state shared by host components. The zero
// value is ready to use.
type Base struct {
	mu          sync.Mutex
	root        dom.Element
	inDocument  bool
	disposed    bool
	subscribers map[string][]*subscriber
	disposeOnce sync.Once
}

func (b *Base) Root() dom.Element {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.root
}

func (b *Base) SetRoot(el dom.Element) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.root = el
}

func (b *Base) InDocument() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inDocument
}

// EnterDocument marks the component as live in the document. Listener
// wiring that must not miss early signals belongs before this call.
func (b *Base) EnterDocument() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inDocument = true
}

func (b *Base) ExitDocument() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inDocument = false
}

func (b *Base) Disposed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disposed
}

// On registers a handler for a component event. Handlers run in
// registration order. The returned function removes the registration.
func (b *Base) On(event string, fn func()) (remove func()) {
	return b.subscribe(event, fn, false)
}

// Once registers a handler that runs at most one time.
func (b *Base) Once(event string, fn func()) (remove func()) {
	return b.subscribe(event, fn, true)
}

func (b *Base) subscribe(event string, fn func(), once bool) func() {
	entry := &subscriber{fn: fn, once: once}

	b.mu.Lock()
	if b.subscribers == nil {
		b.subscribers = map[string][]*subscriber{}
	}
	b.subscribers[event] = append(b.subscribers[event], entry)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.remove(event, entry)
	}
}

// remove must be called with b.mu held.
func (b *Base) remove(event string, entry *subscriber) {
	entry.removed = true
	registered := b.subscribers[event]
	for i, cur := range registered {
		if cur == entry {
			b.subscribers[event] = append(registered[:i], registered[i+1:]...)
			return
		}
	}
}

// Dispatch invokes every live handler registered for event, in
// registration order. Once-handlers are unregistered before they run.
func (b *Base) Dispatch(event string) {
	b.mu.Lock()
	snapshot := append([]*subscriber{}, b.subscribers[event]...)
	b.mu.Unlock()

	for _, entry := range snapshot {
		b.mu.Lock()
		if entry.removed {
			b.mu.Unlock()
			continue
		}
		if entry.once {
			b.remove(event, entry)
		}
		b.mu.Unlock()
		entry.fn()
	}
}

// Dispose releases the root reference and all subscribers. Safe to call
// any number of times.
func (b *Base) Dispose() {
	b.disposeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.disposed = true
		b.inDocument = false
		b.root = nil
		b.subscribers = nil
	})
}
