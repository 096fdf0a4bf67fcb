package paginate

import "sync"

// Registry keeps one scope per key, e.g. the comments scope of each confession.
type Registry[T any] struct {
	mu     sync.Mutex
	scopes map[string]*Scope[T]
	build  func(key string) *Scope[T]
}

// NewRegistry creates a registry that builds missing scopes with build.
func NewRegistry[T any](build func(key string) *Scope[T]) *Registry[T] {
	return &Registry[T]{scopes: make(map[string]*Scope[T]), build: build}
}

// Get returns the scope for key, creating it on first use.
func (r *Registry[T]) Get(key string) *Scope[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scopes[key]
	if !ok {
		s = r.build(key)
		r.scopes[key] = s
	}
	return s
}

// Reset resets the scope for key if it exists.
func (r *Registry[T]) Reset(key string) {
	r.mu.Lock()
	s, ok := r.scopes[key]
	r.mu.Unlock()
	if ok {
		s.Reset()
	}
}

// ResetAll resets every known scope.
func (r *Registry[T]) ResetAll() {
	r.mu.Lock()
	scopes := make([]*Scope[T], 0, len(r.scopes))
	for _, s := range r.scopes {
		scopes = append(scopes, s)
	}
	r.mu.Unlock()
	for _, s := range scopes {
		s.Reset()
	}
}
