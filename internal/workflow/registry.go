package workflow

import "sync"

// Registry hands out one controller per (session, operator) pair so the
// HTTP layer can route stateless requests to stateful workflows.
type Registry struct {
	mu          sync.Mutex
	backend     Backend
	controllers map[string]*Controller
}

func NewRegistry(backend Backend) *Registry {
	return &Registry{
		backend:     backend,
		controllers: make(map[string]*Controller),
	}
}

func key(sessionID, operator string) string {
	return sessionID + "\x00" + operator
}

// Get returns the controller for the pair, creating it on first use.
func (r *Registry) Get(sessionID, operator string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(sessionID, operator)
	c, ok := r.controllers[k]
	if !ok {
		c = NewController(r.backend, sessionID, operator)
		r.controllers[k] = c
	}
	return c
}

// Drop removes one operator's controller, discarding in-progress state.
func (r *Registry) Drop(sessionID, operator string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.controllers, key(sessionID, operator))
}

// DropSession removes every controller attached to a session. Called
// when the session is deleted.
func (r *Registry) DropSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := sessionID + "\x00"
	for k := range r.controllers {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(r.controllers, k)
		}
	}
}
