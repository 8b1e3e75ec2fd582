package store

import (
	"context"
	"sync"
	"time"

	"github.com/law-makers/harvest/pkg/models"
	"github.com/rs/zerolog/log"
)

type memoryEntry struct {
	kind       models.SourceKind
	attributes *models.Attributes
	fetchedAt  time.Time
}

// MemoryStore keeps documents in process memory. It backs `harvest get`
// and the tests.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*memoryEntry
	inserts     uint64
	updates     uint64
}

// NewMemory creates an empty in-memory store
func NewMemory() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]*memoryEntry),
	}
}

// Upsert replaces the document stored under the record's key
func (m *MemoryStore) Upsert(ctx context.Context, rec *models.CanonicalRecord) (Ack, error) {
	if err := validate(rec); err != nil {
		return Ack{}, err
	}
	if err := ctx.Err(); err != nil {
		return Ack{}, err
	}

	// Clone outside the lock; the caller may keep mutating its record.
	entry := &memoryEntry{
		kind:       rec.SourceKind,
		attributes: rec.Attributes.Clone(),
		fetchedAt:  rec.FetchedAt,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll, ok := m.collections[rec.Collection()]
	if !ok {
		coll = make(map[string]*memoryEntry)
		m.collections[rec.Collection()] = coll
	}
	_, exists := coll[rec.Identifier]
	coll[rec.Identifier] = entry
	if exists {
		m.updates++
	} else {
		m.inserts++
	}

	log.Debug().
		Str("collection", rec.Collection()).
		Str("identifier", rec.Identifier).
		Bool("inserted", !exists).
		Msg("Stored document in memory")

	return Ack{Collection: rec.Collection(), Identifier: rec.Identifier, Inserted: !exists}, nil
}

// Get returns a copy of the stored document
func (m *MemoryStore) Get(ctx context.Context, kind models.SourceKind, identifier string) (*models.StoredDocument, error) {
	m.mu.RLock()
	entry, ok := m.collections[kind.Collection()][identifier]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &models.StoredDocument{
		SourceKind: entry.kind,
		Identifier: identifier,
		Attributes: entry.attributes.Clone(),
		FetchedAt:  entry.fetchedAt,
	}, nil
}

// Len returns the number of documents in a collection
func (m *MemoryStore) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

// Stats returns write counters
func (m *MemoryStore) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	documents := 0
	for _, coll := range m.collections {
		documents += len(coll)
	}
	return map[string]interface{}{
		"collections": len(m.collections),
		"documents":   documents,
		"inserts":     m.inserts,
		"updates":     m.updates,
	}
}

// Close drops every document
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.collections = make(map[string]map[string]*memoryEntry)
	m.mu.Unlock()
	log.Debug().Msg("Memory store closed")
	return nil
}
