package client

import (
	"reflect"
	"sync"
)

// Handler consumes one frame for a subscribed event type.
type Handler func(Frame)

// pubsub is the typed event-name-to-handler-list map decoupling the
// transport from application consumers. Handlers are removed by function
// identity; removing with a nil handler clears every handler for the
// event, which is what component teardown wants.
type pubsub struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func newPubsub() *pubsub {
	return &pubsub{handlers: make(map[string][]Handler)}
}

func (p *pubsub) on(event string, h Handler) {
	if h == nil {
		return
	}
	p.mu.Lock()
	p.handlers[event] = append(p.handlers[event], h)
	p.mu.Unlock()
}

func (p *pubsub) off(event string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h == nil {
		delete(p.handlers, event)
		return
	}

	want := reflect.ValueOf(h).Pointer()
	list := p.handlers[event]
	for i, existing := range list {
		if reflect.ValueOf(existing).Pointer() == want {
			p.handlers[event] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(p.handlers[event]) == 0 {
		delete(p.handlers, event)
	}
}

func (p *pubsub) emit(event string, frame Frame) {
	p.mu.RLock()
	list := make([]Handler, len(p.handlers[event]))
	copy(list, p.handlers[event])
	p.mu.RUnlock()

	for _, h := range list {
		h(frame)
	}
}
