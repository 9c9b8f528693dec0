package classifier

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/mri-check/internal/session"
)

// Model runs one forward pass and returns one probability per entry in Labels.
type Model interface {
	Predict(ctx context.Context, input *Tensor) ([]float32, error)
}

// Initializer materialises the artifact and connects a Model.
type Initializer func(ctx context.Context) (Model, error)

// Lazy initialises the model on first use and shares it for the life of the process.
// A failed initialisation is not cached; the next caller tries again.
type Lazy struct {
	mu    sync.Mutex
	init  Initializer
	model Model
}

// NewLazy wraps init.
func NewLazy(init Initializer) *Lazy {
	return &Lazy{init: init}
}

// Get returns the shared model, initialising it if needed.
func (l *Lazy) Get(ctx context.Context) (Model, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.model != nil {
		return l.model, nil
	}
	model, err := l.init(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrArtifactUnavailable, err)
	}
	l.model = model
	return model, nil
}

// Ready reports whether the model has been initialised.
func (l *Lazy) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.model != nil
}
