package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Loader holds the process-wide pipeline handle. The handle is created at
// most once and never torn down; callers that arrive while a load is in
// progress wait for it. A failed load leaves the loader empty so the next
// caller tries again.
type Loader struct {
	mu      sync.Mutex
	factory Factory
	handle  Inpainter
	loaded  atomic.Bool
}

func NewLoader(factory Factory) *Loader {
	return &Loader{factory: factory}
}

func (l *Loader) Get(ctx context.Context) (Inpainter, error) {
	if l.loaded.Load() {
		return l.handle, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.handle != nil {
		return l.handle, nil
	}

	logrus.Info("Loading inpainting pipeline...")
	start := time.Now()

	handle, err := l.factory(ctx)
	if err != nil {
		logrus.WithError(err).Error("pipeline load failed")
		return nil, err
	}

	l.handle = handle
	l.loaded.Store(true)

	logrus.WithFields(logrus.Fields{
		"backend":  handle.Name(),
		"duration": time.Since(start).String(),
	}).Info("Pipeline loaded")
	return handle, nil
}

// Loaded reports whether the handle exists without waiting on an in-flight load.
func (l *Loader) Loaded() bool {
	return l.loaded.Load()
}
