// Package persist stores form snapshots: one opaque record per storage key
// holding the flat field-name -> value table of the form that was on screen
// when it was taken.
package persist

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/matthewbaird/onboarding/internal/types"
)

// StorageKey is the fixed record name. Per-client keys append "/<client>".
const StorageKey = "onboardingFormData"

// Version is the snapshot layout written by this build.
const Version = 1

// ErrNotFound is returned when no snapshot exists for a key.
var ErrNotFound = errors.New("snapshot not found")

// ErrIncompatible is returned for stored blobs that are not a snapshot this
// build can read.
var ErrIncompatible = errors.New("incompatible snapshot")

// Snapshot is the persisted form state.
type Snapshot struct {
	Version   int               `json:"version"`
	Selection *types.SectionRef `json:"selection,omitempty"`
	Fields    map[string]string `json:"fields"`
	SavedAt   time.Time         `json:"saved_at"`
}

// KeyFor returns the storage key of a client. An empty client uses the bare
// StorageKey.
func KeyFor(client string) string {
	client = strings.TrimSpace(client)
	if client == "" {
		return StorageKey
	}
	return StorageKey + "/" + client
}

// Store reads and writes snapshots.
type Store interface {
	Save(ctx context.Context, key string, snap Snapshot) error
	Load(ctx context.Context, key string) (Snapshot, error)
	Delete(ctx context.Context, key string) error
}

//go:embed snapshot.schema.json
var snapshotSchemaJSON string

var snapshotSchema = jsonschema.MustCompileString("snapshot.schema.json", snapshotSchemaJSON)

// Encode marshals a snapshot, stamping the current version.
func Encode(snap Snapshot) ([]byte, error) {
	snap.Version = Version
	if snap.Fields == nil {
		snap.Fields = map[string]string{}
	}
	return json.Marshal(snap)
}

// Decode checks a stored blob against the snapshot schema and unmarshals it.
// Blobs from other versions or with a different shape yield ErrIncompatible.
func Decode(blob []byte) (Snapshot, error) {
	var doc any
	if err := json.Unmarshal(blob, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}
	if err := snapshotSchema.Validate(doc); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}
	return snap, nil
}

// MemoryStore implements Store in memory. Intended for tests and demos.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Save(_ context.Context, key string, snap Snapshot) error {
	blob, err := Encode(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = blob
	return nil
}

func (s *MemoryStore) Load(_ context.Context, key string) (Snapshot, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return Decode(blob)
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

// Keys returns the stored keys. Test helper.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.blobs))
	for k := range maps.Keys(s.blobs) {
		keys = append(keys, k)
	}
	return keys
}

// PutRaw stores a blob without encoding. Test helper for legacy layouts.
func (s *MemoryStore) PutRaw(key string, blob []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = blob
}
