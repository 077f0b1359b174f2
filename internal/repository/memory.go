package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the document in process memory.
type MemoryStore struct {
	mu  sync.Mutex
	doc *Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return Document{}, ErrNotFound
	}
	return copyDocument(*m.doc), nil
}

func (m *MemoryStore) Save(_ context.Context, body []byte, expectedVersion int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var current int64
	if m.doc != nil {
		current = m.doc.Version
	}
	if current != expectedVersion {
		return 0, ErrVersionConflict
	}
	doc := copyDocument(Document{Body: body, Version: current + 1, UpdatedAt: time.Now().UTC()})
	m.doc = &doc
	return doc.Version, nil
}

func (m *MemoryStore) Put(_ context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := copyDocument(doc)
	m.doc = &cp
	return nil
}

func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

func copyDocument(doc Document) Document {
	doc.Body = append([]byte(nil), doc.Body...)
	return doc
}
