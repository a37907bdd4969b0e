package backend

import (
	"sync"

	"github.com/tphakala/audiocapture/internal/errors"
	"github.com/tphakala/audiocapture/internal/logger"
)

// Factory creates a backend instance.
type Factory func() (Backend, error)

// ErrNotAcquired is returned by Release without a matching Acquire.
var ErrNotAcquired = errors.NewStd("backend released without acquire")

// Loader lazily creates one shared backend on first Acquire and closes it
// when the last holder releases it. A later Acquire creates a fresh instance.
type Loader struct {
	name    string
	factory Factory
	log     logger.Logger

	mu       sync.Mutex
	refs     int
	backend  Backend
	observer func(loaded bool)
}

// NewLoader returns a Loader using factory. log may be nil.
func NewLoader(name string, factory Factory, log logger.Logger) *Loader {
	if log == nil {
		log = logger.Global().Module("backend")
	}
	return &Loader{
		name:    name,
		factory: factory,
		log:     log.With(logger.String("backend", name)),
	}
}

// SetLoadObserver registers fn to be called, under the loader lock, whenever
// a backend instance is created or closed.
func (l *Loader) SetLoadObserver(fn func(loaded bool)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observer = fn
}

// Name returns the backend name the loader was registered under.
func (l *Loader) Name() string { return l.name }

// Acquire returns the shared backend, creating it if needed. Every
// successful Acquire must be paired with Release.
func (l *Loader) Acquire() (Backend, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.backend == nil {
		b, err := l.factory()
		if err != nil {
			return nil, errors.New(err).
				Component("backend").
				Category(errors.CategoryAudioBackend).
				Context("operation", "load").
				Context("backend", l.name).
				Build()
		}
		l.backend = b
		l.log.Debug("backend loaded")
		if l.observer != nil {
			l.observer(true)
		}
	}
	l.refs++
	return l.backend, nil
}

// Release drops one reference and closes the backend when none remain.
func (l *Loader) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.refs == 0 {
		return errors.New(ErrNotAcquired).
			Component("backend").
			Category(errors.CategoryGeneric).
			Context("backend", l.name).
			Build()
	}
	l.refs--
	if l.refs > 0 {
		return nil
	}

	b := l.backend
	l.backend = nil
	l.log.Debug("backend unloaded")
	if l.observer != nil {
		l.observer(false)
	}
	if err := b.Close(); err != nil {
		return errors.New(err).
			Component("backend").
			Category(errors.CategoryAudioBackend).
			Context("operation", "unload").
			Context("backend", l.name).
			Build()
	}
	return nil
}

// Refs returns the number of outstanding references.
func (l *Loader) Refs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refs
}

// Loaded reports whether a backend instance is currently alive.
func (l *Loader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backend != nil
}
