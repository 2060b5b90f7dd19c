package relay

import (
	"sync"

	"cipherdb/internal/protocol/wire"
)

type result struct {
	resp *wire.Response
	err  error
}

// registry tracks requests awaiting a response.
type registry struct {
	mu sync.Mutex
	m  map[string]chan result
}

func newRegistry() *registry {
	return &registry{m: map[string]chan result{}}
}

func (r *registry) add(id string) <-chan result {
	ch := make(chan result, 1)
	r.mu.Lock()
	r.m[id] = ch
	r.mu.Unlock()
	return ch
}

// resolve delivers a response and reports whether anyone was waiting.
func (r *registry) resolve(resp *wire.Response) bool {
	r.mu.Lock()
	ch, ok := r.m[resp.RequestID]
	delete(r.m, resp.RequestID)
	r.mu.Unlock()
	if ok {
		ch <- result{resp: resp}
	}
	return ok
}

func (r *registry) drop(id string) {
	r.mu.Lock()
	delete(r.m, id)
	r.mu.Unlock()
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

func (r *registry) failAll(err error) {
	r.mu.Lock()
	m := r.m
	r.m = map[string]chan result{}
	r.mu.Unlock()
	for _, ch := range m {
		ch <- result{err: err}
	}
}
