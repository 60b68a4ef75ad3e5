package jsonp

import (
	"encoding/json"
	"sync"
)

// pendingCall is a callback waiting for the remote script to invoke it.
// settle runs at most once, whichever of resolve, reject or abandon wins.
type pendingCall struct {
	name    string
	once    sync.Once
	done    chan struct{}
	payload json.RawMessage
	err     error
	cleanup func()
}

func newPendingCall(name string) *pendingCall {
	return &pendingCall{name: name, done: make(chan struct{})}
}

func (c *pendingCall) settle(payload json.RawMessage, err error) bool {
	settled := false
	c.once.Do(func() {
		c.payload = payload
		c.err = err
		if c.cleanup != nil {
			c.cleanup()
		}
		close(c.done)
		settled = true
	})
	return settled
}

// Registry maps callback names to in-flight calls. It replaces the global
// window namespace a browser would use.
type Registry struct {
	mu    sync.Mutex
	calls map[string]*pendingCall
}

func NewRegistry() *Registry {
	return &Registry{calls: make(map[string]*pendingCall)}
}

func (r *Registry) register(c *pendingCall) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.calls[c.name]; exists {
		return false
	}
	r.calls[c.name] = c
	return true
}

func (r *Registry) deregister(name string) {
	r.mu.Lock()
	delete(r.calls, name)
	r.mu.Unlock()
}

// Invoke resolves the call registered under name. It reports false when no
// such callback exists, which is what a script calling an unknown function
// amounts to.
func (r *Registry) Invoke(name string, payload json.RawMessage) bool {
	r.mu.Lock()
	c, ok := r.calls[name]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return c.settle(payload, nil)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
