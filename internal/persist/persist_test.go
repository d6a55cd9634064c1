package persist

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/onboarding/internal/types"
)

func testSnapshot(first string) Snapshot {
	return Snapshot{
		Selection: &types.SectionRef{Kind: types.KindMember, EntityID: "john-smith", Section: types.SectionOwnerDetails},
		Fields:    map[string]string{"firstName": first, "email": "john@x.com"},
		SavedAt:   time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC),
	}
}

func TestKeyFor(t *testing.T) {
	assert.Equal(t, "onboardingFormData", KeyFor(""))
	assert.Equal(t, "onboardingFormData/abc", KeyFor(" abc "))
}

func TestEncodeDecode_StampsVersion(t *testing.T) {
	blob, err := Encode(Snapshot{})
	require.NoError(t, err)

	snap, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, Version, snap.Version)
	assert.NotNil(t, snap.Fields)
}

func TestDecode_Incompatible(t *testing.T) {
	for name, blob := range map[string]string{
		"not json":        `{`,
		"legacy flat map": `{"firstName":"John","email":"john@x.com"}`,
		"future version":  `{"version":2,"fields":{}}`,
		"non-string":      `{"version":1,"fields":{"agree":true}}`,
		"bad selection":   `{"version":1,"fields":{},"selection":{"kind":"trust","entity_id":"x","section":"y"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(blob))
			assert.ErrorIs(t, err, ErrIncompatible)
		})
	}
}

func storeContract(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(ctx, KeyFor("a"), testSnapshot("John")))
	require.NoError(t, s.Save(ctx, KeyFor("b"), testSnapshot("Jane")))
	require.NoError(t, s.Save(ctx, KeyFor("a"), testSnapshot("Johnny")))

	got, err := s.Load(ctx, KeyFor("a"))
	require.NoError(t, err)
	assert.Equal(t, Version, got.Version)
	assert.Equal(t, "Johnny", got.Fields["firstName"])
	require.NotNil(t, got.Selection)
	assert.Equal(t, "john-smith", got.Selection.EntityID)
	assert.True(t, got.SavedAt.Equal(testSnapshot("").SavedAt))

	got, err = s.Load(ctx, KeyFor("b"))
	require.NoError(t, err)
	assert.Equal(t, "Jane", got.Fields["firstName"])

	require.NoError(t, s.Delete(ctx, KeyFor("a")))
	_, err = s.Load(ctx, KeyFor("a"))
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.Delete(ctx, KeyFor("a")), "deleting a missing key is not an error")
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestMemoryStore_LegacyBlobIgnored(t *testing.T) {
	s := NewMemoryStore()
	s.PutRaw(StorageKey, []byte(`{"firstName":"John"}`))
	_, err := s.Load(context.Background(), StorageKey)
	assert.ErrorIs(t, err, ErrIncompatible)
}

func TestSQLiteStore(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "snapshots.db")
	s, err := OpenSQLite(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	storeContract(t, s)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "snapshots.db")

	s, err := OpenSQLite(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, StorageKey, testSnapshot("John")))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(ctx, StorageKey)
	require.NoError(t, err)
	assert.Equal(t, "John", got.Fields["firstName"])
}

// recordingStore counts saves and keeps the last snapshot.
type recordingStore struct {
	mu    sync.Mutex
	saves []Snapshot
}

func (r *recordingStore) Save(_ context.Context, _ string, snap Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = append(r.saves, snap)
	return nil
}

func (r *recordingStore) Load(context.Context, string) (Snapshot, error) {
	return Snapshot{}, ErrNotFound
}

func (r *recordingStore) Delete(context.Context, string) error { return nil }

func (r *recordingStore) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

func (r *recordingStore) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves[len(r.saves)-1]
}

func TestDebouncer_LastWriteWins(t *testing.T) {
	rec := &recordingStore{}
	d := NewDebouncer(rec, StorageKey, 30*time.Millisecond)

	d.Schedule(testSnapshot("J"))
	d.Schedule(testSnapshot("Jo"))
	d.Schedule(testSnapshot("John"))
	assert.True(t, d.Pending())

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "John", rec.last().Fields["firstName"])
	assert.False(t, d.Pending())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, rec.count(), "superseded timers never fire")
}

func TestDebouncer_FlushCancelsPending(t *testing.T) {
	rec := &recordingStore{}
	d := NewDebouncer(rec, StorageKey, 30*time.Millisecond)

	d.Schedule(testSnapshot("draft"))
	require.NoError(t, d.Flush(context.Background(), testSnapshot("final")))
	assert.Equal(t, 1, rec.count())
	assert.False(t, d.Pending())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, "final", rec.last().Fields["firstName"])
}

func TestDebouncer_OnSaved(t *testing.T) {
	rec := &recordingStore{}
	d := NewDebouncer(rec, StorageKey, 10*time.Millisecond)
	done := make(chan Snapshot, 1)
	d.OnSaved = func(s Snapshot, err error) {
		assert.NoError(t, err)
		done <- s
	}

	d.Schedule(testSnapshot("John"))
	select {
	case s := <-done:
		assert.Equal(t, "John", s.Fields["firstName"])
	case <-time.After(time.Second):
		t.Fatal("debounced save never fired")
	}
}

// blockingStore holds its first Save until release is closed.
type blockingStore struct {
	recordingStore
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func newBlockingStore() *blockingStore {
	return &blockingStore{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingStore) Save(ctx context.Context, key string, snap Snapshot) error {
	first := false
	b.once.Do(func() { first = true })
	if first {
		close(b.started)
		<-b.release
	}
	return b.recordingStore.Save(ctx, key, snap)
}

func TestDebouncer_FlushAfterInFlightWriteWins(t *testing.T) {
	store := newBlockingStore()
	d := NewDebouncer(store, StorageKey, 5*time.Millisecond)

	d.Schedule(testSnapshot("old"))
	select {
	case <-store.started:
	case <-time.After(time.Second):
		t.Fatal("debounced save never started")
	}
	assert.True(t, d.Pending(), "a write in progress is still pending")

	flushed := make(chan error, 1)
	go func() { flushed <- d.Flush(context.Background(), testSnapshot("new")) }()
	time.Sleep(20 * time.Millisecond)
	close(store.release)

	require.NoError(t, <-flushed)
	require.Equal(t, 2, store.count())
	assert.Equal(t, "new", store.last().Fields["firstName"])
	assert.False(t, d.Pending())
}

func TestDebouncer_SupersededTimerDropsSnapshot(t *testing.T) {
	rec := &recordingStore{}
	d := NewDebouncer(rec, StorageKey, time.Hour)

	d.Schedule(testSnapshot("old"))
	stale := d.gen
	d.Schedule(testSnapshot("new"))
	d.fire(stale)
	assert.Equal(t, 0, rec.count(), "superseded generation writes nothing")

	d.fire(d.gen)
	require.Equal(t, 1, rec.count())
	assert.Equal(t, "new", rec.last().Fields["firstName"])
	d.Cancel()
	assert.False(t, d.Pending())
}

func TestNewDebouncer_DefaultDelay(t *testing.T) {
	d := NewDebouncer(NewMemoryStore(), StorageKey, 0)
	assert.Equal(t, DefaultDebounce, d.delay)
	assert.Equal(t, StorageKey, d.Key())
}
