package api

import (
	"context"
	"errors"
	"sync"

	"vsme-guru/internal/common/logger"
	"vsme-guru/internal/common/metrics"
	"vsme-guru/internal/wizard/engine"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("SESSION_NOT_FOUND")

// EngineFactory builds the engine of one session. The engine restores the
// session's snapshot if one exists.
type EngineFactory func(ctx context.Context, sessionID string) (*engine.Engine, error)

// Registry holds the wizard engines of live sessions. A session that is not
// in memory is rehydrated from its snapshot on first access.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*engine.Engine
	factory  EngineFactory
	log      logger.Logger
}

func NewRegistry(factory EngineFactory, log logger.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*engine.Engine),
		factory:  factory,
		log:      log.WithFields(map[string]interface{}{"component": "session-registry"}),
	}
}

// Create starts a new session with default state.
func (r *Registry) Create(ctx context.Context) (string, *engine.Engine, error) {
	id := uuid.NewString()
	e, err := r.factory(ctx, id)
	if err != nil {
		return "", nil, err
	}

	r.mu.Lock()
	r.sessions[id] = e
	r.updateGauge()
	r.mu.Unlock()

	logger.WithSession(r.log, id).Info("Wizard session created", nil)
	return id, e, nil
}

// Get returns the engine of id, rehydrating it from its snapshot when needed.
// ErrSessionNotFound is returned when the session is neither in memory nor
// persisted.
func (r *Registry) Get(ctx context.Context, id string) (*engine.Engine, error) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	r.mu.Unlock()
	if ok {
		return e, nil
	}

	e, err := r.factory(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.Restored() {
		e.Close()
		return nil, ErrSessionNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[id]; ok {
		e.Close()
		return existing, nil
	}
	r.sessions[id] = e
	r.updateGauge()
	logger.WithSession(r.log, id).Info("Wizard session rehydrated", nil)
	return e, nil
}

// Remove discards a session together with its snapshot.
func (r *Registry) Remove(ctx context.Context, id string) error {
	e, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.sessions, id)
	r.updateGauge()
	r.mu.Unlock()

	e.Reset(ctx)
	e.Close()
	logger.WithSession(r.log, id).Info("Wizard session removed", nil)
	return nil
}

// Len returns the number of sessions in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close flushes and closes every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*engine.Engine)
	r.updateGauge()
	r.mu.Unlock()

	for _, e := range sessions {
		e.Close()
	}
}

func (r *Registry) updateGauge() {
	metrics.WizardSessionsActive.Set(float64(len(r.sessions)))
}
