package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"vsme-guru/internal/common/config"
	"vsme-guru/internal/common/database"
	"vsme-guru/internal/common/logger"
	"vsme-guru/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingStore counts writes and can be told to fail.
type recordingStore struct {
	*MemoryStore
	mu      sync.Mutex
	writes  []string
	failErr error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: NewMemoryStore()}
}

func (s *recordingStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	s.writes = append(s.writes, value)
	fail := s.failErr
	s.mu.Unlock()
	if fail != nil {
		return fail
	}
	return s.MemoryStore.Set(ctx, key, value)
}

func (s *recordingStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	fail := s.failErr
	s.mu.Unlock()
	if fail != nil {
		return "", fail
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *recordingStore) Writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.writes...)
}

func sampleData(name string) models.FormData {
	data := models.DefaultFormData()
	data.OrganizationName = name
	data.Revenue = 100000
	data.NumberOfEmployees = 10
	return data
}

func newTestPersister(t *testing.T, store Store, clock *fakeClock) *Persister {
	return NewPersister(store, Options{
		Key:    "vsme-guru:form-data:test",
		Now:    clock.Now,
		Logger: logger.NewTestLogger(t),
	})
}

func jsonInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func configFor(addr string) config.RedisConfig {
	return config.RedisConfig{Address: addr}
}

// ==========================
// Persister
// ==========================

func TestPersister_RoundTrip(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	p := newTestPersister(t, store, clock)
	ctx := context.Background()

	data := sampleData("Acme AS")
	p.Save(ctx, data, 2)

	clock.Advance(23 * time.Hour)
	snap := p.Load(ctx)

	require.NotNil(t, snap)
	assert.Equal(t, data, snap.FormData)
	assert.Equal(t, 2, snap.CurrentStep)
	assert.Equal(t, Version, snap.Version)
	assert.Equal(t, clock.Now().Add(-23*time.Hour).UnixMilli(), snap.Timestamp)
}

func TestPersister_StaleSnapshotIsCleared(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	p := newTestPersister(t, store, clock)
	ctx := context.Background()

	p.Save(ctx, sampleData("Acme AS"), 1)
	clock.Advance(24*time.Hour + time.Millisecond)

	assert.Nil(t, p.Load(ctx))
	assert.Equal(t, 0, store.Len())
}

func TestPersister_ExactlyAtWindowIsFresh(t *testing.T) {
	clock := newFakeClock()
	p := newTestPersister(t, NewMemoryStore(), clock)
	ctx := context.Background()

	p.Save(ctx, sampleData("Acme AS"), 1)
	clock.Advance(24 * time.Hour)

	assert.NotNil(t, p.Load(ctx))
}

func TestPersister_CorruptSnapshots(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{{{"},
		{"wrong version", `{"formData":{},"currentStep":1,"timestamp":1740830400000,"version":"0.9.0"}`},
		{"missing timestamp", `{"formData":{},"currentStep":1,"version":"1.0.0"}`},
		{"null form data", `{"formData":null,"currentStep":1,"timestamp":1740830400000,"version":"1.0.0"}`},
		{"wrong field type", `{"formData":{"revenue":"lots"},"currentStep":1,"timestamp":1740830400000,"version":"1.0.0"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			store := NewMemoryStore()
			p := newTestPersister(t, store, clock)
			ctx := context.Background()
			require.NoError(t, store.Set(ctx, p.Key(), tt.raw))

			assert.Nil(t, p.Load(ctx))
			assert.Equal(t, 0, store.Len())
		})
	}
}

func TestPersister_PartialSnapshotMergesOverDefaults(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	p := newTestPersister(t, store, clock)
	ctx := context.Background()
	raw := `{"formData":{"organizationName":"Acme AS","initiatives":{"biodiversity":{"isActive":true}}},` +
		`"currentStep":3,"timestamp":` + jsonInt(clock.Now().UnixMilli()) + `,"version":"1.0.0"}`
	require.NoError(t, store.Set(ctx, p.Key(), raw))

	snap := p.Load(ctx)

	require.NotNil(t, snap)
	assert.Equal(t, "Acme AS", snap.FormData.OrganizationName)
	assert.Len(t, snap.FormData.Initiatives, 8)
	assert.True(t, snap.FormData.Initiatives[models.InitiativeBiodiversity].IsActive)
	assert.False(t, snap.FormData.Initiatives[models.InitiativeClimateAction].IsActive)
	assert.NotNil(t, snap.FormData.Subsidiaries)
}

func TestPersister_MissingSnapshot(t *testing.T) {
	p := newTestPersister(t, NewMemoryStore(), newFakeClock())
	assert.Nil(t, p.Load(context.Background()))
}

func TestPersister_FailuresAreSwallowed(t *testing.T) {
	store := newRecordingStore()
	store.failErr = errors.New("quota exceeded")
	p := newTestPersister(t, store, newFakeClock())
	ctx := context.Background()

	assert.NotPanics(t, func() {
		p.Save(ctx, sampleData("Acme AS"), 1)
		assert.Nil(t, p.Load(ctx))
		p.Clear(ctx)
	})
}

func TestPersister_Clear(t *testing.T) {
	store := NewMemoryStore()
	p := newTestPersister(t, store, newFakeClock())
	ctx := context.Background()

	p.Save(ctx, sampleData("Acme AS"), 1)
	require.Equal(t, 1, store.Len())

	p.Clear(ctx)
	assert.Equal(t, 0, store.Len())
	assert.Nil(t, p.Load(ctx))
}

func TestNewPersister_Defaults(t *testing.T) {
	p := NewPersister(NewMemoryStore(), Options{})
	assert.Equal(t, DefaultKey, p.Key())
	assert.Equal(t, DefaultMaxAge, p.maxAge)
}

// ==========================
// Redis store
// ==========================

func TestRedisStore_WithMiniredis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client, err := database.NewRedis(configFor(mr.Addr()))
	require.NoError(t, err)
	defer client.Close()

	clock := newFakeClock()
	store := NewRedisStore(client, DefaultMaxAge)
	p := newTestPersister(t, store, clock)
	ctx := context.Background()

	p.Save(ctx, sampleData("Acme AS"), 2)
	assert.Equal(t, DefaultMaxAge, mr.TTL(p.Key()))

	snap := p.Load(ctx)
	require.NotNil(t, snap)
	assert.Equal(t, "Acme AS", snap.FormData.OrganizationName)
	assert.Equal(t, 2, snap.CurrentStep)

	p.Clear(ctx)
	assert.False(t, mr.Exists(p.Key()))

	_, err = store.Get(ctx, p.Key())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_WithRedismock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	clock := newFakeClock()
	store := NewRedisStore(database.NewRedisFromClient(db), time.Hour)
	p := newTestPersister(t, store, clock)
	ctx := context.Background()

	data := sampleData("Acme AS")
	expected, err := json.Marshal(Snapshot{
		FormData:    data,
		CurrentStep: 1,
		Timestamp:   clock.Now().UnixMilli(),
		Version:     Version,
	})
	require.NoError(t, err)

	mock.ExpectSet(p.Key(), string(expected), time.Hour).SetVal("OK")
	p.Save(ctx, data, 1)

	mock.ExpectGet(p.Key()).RedisNil()
	assert.Nil(t, p.Load(ctx))

	mock.ExpectGet(p.Key()).SetErr(errors.New("connection reset"))
	assert.Nil(t, p.Load(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Debounced saver
// ==========================

func TestDebouncedSaver_CoalescesRapidSaves(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := newRecordingStore()
	p := newTestPersister(t, store, newFakeClock())
	saver := p.Debounced(40 * time.Millisecond)

	for i, name := range []string{"A", "Ac", "Acm", "Acme", "Acme AS"} {
		saver.Save(sampleData(name), i%3+1)
	}

	require.Eventually(t, func() bool { return len(store.Writes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, saver.Pending())

	// give a superseded timer a chance to misfire
	time.Sleep(80 * time.Millisecond)
	require.Len(t, store.Writes(), 1)

	snap := p.Load(context.Background())
	require.NotNil(t, snap)
	assert.Equal(t, "Acme AS", snap.FormData.OrganizationName)
	assert.Equal(t, 2, snap.CurrentStep)
}

func TestDebouncedSaver_SaveCopiesData(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := newRecordingStore()
	p := newTestPersister(t, store, newFakeClock())
	saver := p.Debounced(time.Hour)

	data := sampleData("Acme AS")
	saver.Save(data, 1)
	data.Initiatives[models.InitiativeClimateAction] = models.Initiative{IsActive: true}
	saver.Flush()

	snap := p.Load(context.Background())
	require.NotNil(t, snap)
	assert.False(t, snap.FormData.Initiatives[models.InitiativeClimateAction].IsActive)
}

func TestDebouncedSaver_FlushWritesImmediately(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := newRecordingStore()
	p := newTestPersister(t, store, newFakeClock())
	saver := p.Debounced(time.Hour)

	saver.Save(sampleData("Acme AS"), 3)
	require.True(t, saver.Pending())

	saver.Flush()

	assert.False(t, saver.Pending())
	assert.Len(t, store.Writes(), 1)

	saver.Flush()
	assert.Len(t, store.Writes(), 1, "flush without pending write is a no-op")
}

func TestDebouncedSaver_CancelDropsPendingWrite(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := newRecordingStore()
	p := newTestPersister(t, store, newFakeClock())
	saver := p.Debounced(20 * time.Millisecond)

	saver.Save(sampleData("Acme AS"), 1)
	saver.Cancel()

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, store.Writes())
	assert.False(t, saver.Pending())
}

func TestDebouncedSaver_StopFlushesAndDisables(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := newRecordingStore()
	p := newTestPersister(t, store, newFakeClock())
	saver := p.Debounced(time.Hour)

	saver.Save(sampleData("Acme AS"), 1)
	saver.Stop()
	require.Len(t, store.Writes(), 1)

	saver.Save(sampleData("ignored"), 2)
	assert.False(t, saver.Pending())
	assert.Len(t, store.Writes(), 1)
}

// gatedStore holds its first Set until release is closed.
type gatedStore struct {
	*MemoryStore
	first   sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		MemoryStore: NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (s *gatedStore) Set(ctx context.Context, key, value string) error {
	s.first.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.MemoryStore.Set(ctx, key, value)
}

func TestDebouncedSaver_CancelWaitsForWriteInFlight(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := newGatedStore()
	p := newTestPersister(t, store, newFakeClock())
	saver := p.Debounced(time.Millisecond)

	saver.Save(sampleData("Acme AS"), 1)
	<-store.entered

	cancelled := make(chan struct{})
	go func() {
		saver.Cancel()
		close(cancelled)
	}()

	require.Never(t, func() bool {
		select {
		case <-cancelled:
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, 5*time.Millisecond)

	close(store.release)
	<-cancelled
	assert.NotNil(t, p.Load(context.Background()), "the in-flight write completes before Cancel returns")
}

func TestDebouncedSaver_ClearDropsPendingAndDeletes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := newRecordingStore()
	p := newTestPersister(t, store, newFakeClock())
	saver := p.Debounced(20 * time.Millisecond)

	saver.SaveNow(context.Background(), sampleData("Acme AS"), 2)
	require.NotNil(t, p.Load(context.Background()))

	saver.Save(sampleData("Acme AS Nordic"), 2)
	saver.Clear(context.Background())

	time.Sleep(60 * time.Millisecond)
	assert.False(t, saver.Pending())
	assert.Len(t, store.Writes(), 1)
	assert.Nil(t, p.Load(context.Background()))
}

func TestDebouncedSaver_SaveNowSupersedesPending(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := newRecordingStore()
	p := newTestPersister(t, store, newFakeClock())
	saver := p.Debounced(20 * time.Millisecond)

	saver.Save(sampleData("stale"), 1)
	saver.SaveNow(context.Background(), sampleData("Acme AS"), 2)

	time.Sleep(60 * time.Millisecond)
	require.Len(t, store.Writes(), 1)
	snap := p.Load(context.Background())
	require.NotNil(t, snap)
	assert.Equal(t, "Acme AS", snap.FormData.OrganizationName)
	assert.Equal(t, 2, snap.CurrentStep)
}
