package backend

import (
	"slices"
	"sync"

	"github.com/tphakala/audiocapture/internal/errors"
	"github.com/tphakala/audiocapture/internal/logger"
)

// Registry maps backend names to factories and hands out one Loader per name.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	loaders   map[string]*Loader
	log       logger.Logger
	observer  func(loaded bool)
}

// NewRegistry returns an empty registry. log may be nil.
func NewRegistry(log logger.Logger) *Registry {
	if log == nil {
		log = logger.Global().Module("backend")
	}
	return &Registry{
		factories: make(map[string]Factory),
		loaders:   make(map[string]*Loader),
		log:       log,
	}
}

// Register adds a factory under name. Registering a name twice fails.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" || factory == nil {
		return errors.Newf("backend name and factory are required").
			Component("backend").
			Category(errors.CategoryValidation).
			Build()
	}
	if _, exists := r.factories[name]; exists {
		return errors.Newf("backend %q already registered", name).
			Component("backend").
			Category(errors.CategoryValidation).
			Context("backend", name).
			Build()
	}
	r.factories[name] = factory
	return nil
}

// Loader returns the shared Loader for name.
func (r *Registry) Loader(name string) (*Loader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.loaders[name]; ok {
		return l, nil
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, errors.Newf("unknown audio backend %q", name).
			Component("backend").
			Category(errors.CategoryValidation).
			Context("backend", name).
			Context("available", r.namesLocked()).
			Build()
	}
	l := NewLoader(name, factory, r.log)
	l.SetLoadObserver(r.observer)
	r.loaders[name] = l
	return l, nil
}

// SetLoadObserver installs fn on every current and future loader.
func (r *Registry) SetLoadObserver(fn func(loaded bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = fn
	for _, l := range r.loaders {
		l.SetLoadObserver(fn)
	}
}

// Names returns the registered backend names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
