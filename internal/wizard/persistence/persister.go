// Package persistence caches in-progress wizard state so a session can be
// resumed. Persistence is best effort: every failure is logged and treated
// as a cache miss.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"vsme-guru/internal/common/logger"
	"vsme-guru/internal/models"
)

const (
	// Version is written into every snapshot. Snapshots with another version
	// are discarded on load.
	Version = "1.0.0"

	// DefaultKey is the storage key used when none is configured.
	DefaultKey = "vsme-guru-form-data"

	// DefaultMaxAge is the freshness window of a snapshot.
	DefaultMaxAge = 24 * time.Hour

	storeTimeout = 5 * time.Second
)

// Snapshot is the persisted form of a wizard session.
type Snapshot struct {
	FormData    models.FormData `json:"formData"`
	CurrentStep int             `json:"currentStep"`
	Timestamp   int64           `json:"timestamp"` // epoch milliseconds
	Version     string          `json:"version"`
}

// SavedAt returns the snapshot timestamp as a time.
func (s *Snapshot) SavedAt() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// Options configures a Persister. Zero values select the defaults.
type Options struct {
	Key    string
	MaxAge time.Duration
	Now    func() time.Time
	Logger logger.Logger
}

// Persister saves, loads and clears the snapshot stored under one key.
type Persister struct {
	store  Store
	key    string
	maxAge time.Duration
	now    func() time.Time
	log    logger.Logger
}

func NewPersister(store Store, opts Options) *Persister {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	return &Persister{
		store:  store,
		key:    opts.Key,
		maxAge: opts.MaxAge,
		now:    opts.Now,
		log:    opts.Logger.WithFields(map[string]interface{}{"snapshotKey": opts.Key}),
	}
}

// Key returns the storage key of the snapshot.
func (p *Persister) Key() string {
	return p.key
}

// Save writes data and step with the current timestamp.
func (p *Persister) Save(ctx context.Context, data models.FormData, step int) {
	snap := Snapshot{
		FormData:    data,
		CurrentStep: step,
		Timestamp:   p.now().UnixMilli(),
		Version:     Version,
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		p.log.Warn("Failed to encode snapshot", map[string]interface{}{"error": err})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := p.store.Set(ctx, p.key, string(raw)); err != nil {
		p.log.Warn("Failed to save snapshot", map[string]interface{}{"error": err, "step": step})
		return
	}
	p.log.Debug("Snapshot saved", map[string]interface{}{"step": step})
}

// Load returns the stored snapshot, or nil when it is absent, unparsable,
// from another version or older than the freshness window. Stale and corrupt
// entries are deleted.
func (p *Persister) Load(ctx context.Context) *Snapshot {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	raw, err := p.store.Get(ctx, p.key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		p.log.Warn("Failed to read snapshot", map[string]interface{}{"error": err})
		return nil
	}

	snap, reason := decodeSnapshot(raw)
	if snap == nil {
		p.log.Warn("Discarding corrupt snapshot", map[string]interface{}{"reason": reason})
		p.remove(ctx)
		return nil
	}
	if age := p.now().Sub(snap.SavedAt()); age > p.maxAge {
		p.log.Info("Discarding stale snapshot", map[string]interface{}{"age": age.String()})
		p.remove(ctx)
		return nil
	}
	return snap
}

// Clear deletes the snapshot.
func (p *Persister) Clear(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	p.remove(ctx)
}

func (p *Persister) remove(ctx context.Context) {
	if err := p.store.Del(ctx, p.key); err != nil {
		p.log.Warn("Failed to clear snapshot", map[string]interface{}{"error": err})
	}
}

func decodeSnapshot(raw string) (*Snapshot, string) {
	var envelope struct {
		FormData    json.RawMessage `json:"formData"`
		CurrentStep int             `json:"currentStep"`
		Timestamp   int64           `json:"timestamp"`
		Version     string          `json:"version"`
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return nil, err.Error()
	}
	if envelope.Version != Version {
		return nil, "unsupported version " + envelope.Version
	}
	if envelope.Timestamp <= 0 {
		return nil, "missing timestamp"
	}
	if len(envelope.FormData) == 0 || string(envelope.FormData) == "null" {
		return nil, "missing formData"
	}

	data := models.DefaultFormData()
	if err := json.Unmarshal(envelope.FormData, &data); err != nil {
		return nil, err.Error()
	}
	data.Normalize()

	return &Snapshot{
		FormData:    data,
		CurrentStep: envelope.CurrentStep,
		Timestamp:   envelope.Timestamp,
		Version:     envelope.Version,
	}, ""
}
