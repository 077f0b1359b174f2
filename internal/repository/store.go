package repository

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means no group document has been stored yet.
	ErrNotFound = errors.New("group document not found")
	// ErrVersionConflict means the document changed since it was loaded.
	ErrVersionConflict = errors.New("group document version conflict")
)

// Document is the serialised group state together with its store version.
type Document struct {
	Body      []byte
	Version   int64
	UpdatedAt time.Time
}

// DocumentStore persists the single household document.
//
// Save is a compare-and-swap: it succeeds only when the stored version equals
// expectedVersion (0 means "not stored yet") and returns the new version.
// Put writes unconditionally and is used to mirror documents between stores.
type DocumentStore interface {
	Load(ctx context.Context) (Document, error)
	Save(ctx context.Context, body []byte, expectedVersion int64) (int64, error)
	Put(ctx context.Context, doc Document) error
	Ping(ctx context.Context) error
}
