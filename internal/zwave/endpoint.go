package zwave

import (
	"sort"
	"sync"
)

// Endpoint is a multi-channel sub-address of a node with its own device class
// and handler set, independent of the node root.
type Endpoint struct {
	mu          sync.RWMutex
	id          uint8
	node        *Node
	deviceClass DeviceClass
	resolved    bool
	failed      bool
	handlers    map[CommandClass]Handler
}

func newEndpoint(n *Node, id uint8) *Endpoint {
	return &Endpoint{
		id:       id,
		node:     n,
		handlers: make(map[CommandClass]Handler),
	}
}

// ID returns the endpoint number (1..127).
func (e *Endpoint) ID() uint8 { return e.id }

// DeviceClass returns the endpoint's device class.
func (e *Endpoint) DeviceClass() DeviceClass {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.deviceClass
}

// Resolved reports whether a capability report has been applied.
func (e *Endpoint) Resolved() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.resolved
}

// Failed reports whether the endpoint's capability report named an
// unresolvable device class.
func (e *Endpoint) Failed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.failed
}

func (e *Endpoint) settled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.resolved || e.failed
}

// Handler returns the endpoint's handler for class, or nil.
func (e *Endpoint) Handler(class CommandClass) Handler {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.handlers[class]
}

// Handlers returns the endpoint's handlers ordered by class id.
func (e *Endpoint) Handlers() []Handler {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return sortedHandlers(e.handlers)
}

func (e *Endpoint) addHandler(h Handler) {
	e.mu.Lock()
	e.handlers[h.CommandClass()] = h
	e.mu.Unlock()
}

func (e *Endpoint) markFailed() {
	e.mu.Lock()
	e.failed = true
	e.mu.Unlock()
}

// apply installs a resolved device class and a fresh handler set.
func (e *Endpoint) apply(dc DeviceClass, handlers []Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deviceClass = dc
	e.resolved = true
	e.failed = false
	e.handlers = make(map[CommandClass]Handler, len(handlers))
	for _, h := range handlers {
		e.handlers[h.CommandClass()] = h
	}
}

func sortedHandlers(m map[CommandClass]Handler) []Handler {
	out := make([]Handler, 0, len(m))
	for _, h := range m {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CommandClass() < out[j].CommandClass() })
	return out
}
