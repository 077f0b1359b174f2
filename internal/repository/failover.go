package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRetryInterval is how long the failover store waits before probing a
// primary it has marked down.
const DefaultRetryInterval = time.Minute

// FailoverStore serves from the primary store and switches to the fallback
// when the primary fails. Successful primary writes are mirrored to the
// fallback; when the primary comes back the writes made while degraded are
// pushed to it.
type FailoverStore struct {
	primary  DocumentStore
	fallback DocumentStore
	logger   zerolog.Logger

	RetryInterval time.Duration

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
	// last is the newest document known to be in the primary.
	last Document
	// fallbackStale is set when a mirror write failed.
	fallbackStale bool
	// degradedWrites is set when the fallback accepted a save while the
	// primary was down.
	degradedWrites bool
}

func NewFailoverStore(primary, fallback DocumentStore, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{
		primary:       primary,
		fallback:      fallback,
		logger:        logger.With().Str("component", "failover_store").Logger(),
		RetryInterval: DefaultRetryInterval,
	}
}

// Degraded reports whether requests are currently served by the fallback.
func (f *FailoverStore) Degraded() bool {
	return f.isDown.Load()
}

func (f *FailoverStore) Load(ctx context.Context) (Document, error) {
	if f.usePrimary(ctx) {
		doc, err := f.primary.Load(ctx)
		switch {
		case err == nil:
			f.remember(doc)
			return doc, nil
		case errors.Is(err, ErrNotFound):
			return f.restorePrimary(ctx)
		default:
			f.markDown(ctx, err)
		}
	}
	return f.fallback.Load(ctx)
}

// restorePrimary handles an empty primary, for example a Redis restart
// without persistence. The fallback copy is written back to the primary so
// the next save does not start from defaults.
func (f *FailoverStore) restorePrimary(ctx context.Context) (Document, error) {
	doc, err := f.fallback.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("primary empty and fallback unreadable: %w", err)
	}
	if perr := f.primary.Put(ctx, doc); perr != nil {
		f.markDown(ctx, perr)
		return doc, nil
	}
	f.remember(doc)
	f.logger.Warn().Int64("version", doc.Version).Msg("Primary store was empty, restored from fallback")
	return doc, nil
}

func (f *FailoverStore) Save(ctx context.Context, body []byte, expectedVersion int64) (int64, error) {
	if f.usePrimary(ctx) {
		version, err := f.primary.Save(ctx, body, expectedVersion)
		switch {
		case err == nil:
			doc := Document{Body: body, Version: version, UpdatedAt: time.Now().UTC()}
			f.remember(doc)
			f.mirror(ctx, doc)
			return version, nil
		case errors.Is(err, ErrVersionConflict):
			return 0, err
		default:
			f.markDown(ctx, err)
		}
	}
	version, err := f.fallback.Save(ctx, body, expectedVersion)
	if err == nil {
		f.mu.Lock()
		f.degradedWrites = true
		f.mu.Unlock()
	}
	return version, err
}

func (f *FailoverStore) Put(ctx context.Context, doc Document) error {
	if f.usePrimary(ctx) {
		err := f.primary.Put(ctx, doc)
		if err == nil {
			f.remember(doc)
			return f.fallback.Put(ctx, doc)
		}
		f.markDown(ctx, err)
	}
	return f.fallback.Put(ctx, doc)
}

// Ping succeeds while either store is reachable.
func (f *FailoverStore) Ping(ctx context.Context) error {
	if err := f.primary.Ping(ctx); err == nil {
		return nil
	}
	return f.fallback.Ping(ctx)
}

func (f *FailoverStore) remember(doc Document) {
	f.mu.Lock()
	f.last = copyDocument(doc)
	f.mu.Unlock()
}

func (f *FailoverStore) mirror(ctx context.Context, doc Document) {
	err := f.fallback.Put(ctx, doc)
	f.mu.Lock()
	f.fallbackStale = err != nil
	f.mu.Unlock()
	if err != nil {
		f.logger.Warn().Err(err).Int64("version", doc.Version).Msg("Failed to mirror document to fallback store")
	}
}

// markDown switches to the fallback. A fallback that missed mirror writes is
// first brought up to the last primary document so degraded saves continue
// from it.
func (f *FailoverStore) markDown(ctx context.Context, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCheck = time.Now()
	if f.isDown.Swap(true) {
		return
	}
	f.logger.Error().Err(err).Msg("Primary store failed, switching to fallback")

	if !f.fallbackStale || f.last.Version == 0 {
		return
	}
	if perr := f.fallback.Put(ctx, f.last); perr != nil {
		f.logger.Error().Err(perr).Int64("version", f.last.Version).Msg("Failed to catch up fallback store")
		return
	}
	f.fallbackStale = false
	f.logger.Info().Int64("version", f.last.Version).Msg("Fallback store caught up with primary")
}

// usePrimary returns true when the primary is healthy, or when it was down
// and has just been resynchronised after the retry interval.
func (f *FailoverStore) usePrimary(ctx context.Context) bool {
	if !f.isDown.Load() {
		return true
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Since(f.lastCheck) < f.RetryInterval {
		return false
	}
	f.lastCheck = time.Now()

	if err := f.resync(ctx); err != nil {
		f.logger.Warn().Err(err).Msg("Primary store still unavailable")
		return false
	}
	f.isDown.Store(false)
	f.logger.Info().Msg("Primary store recovered")
	return true
}

// resync reconciles the stores before the primary is used again. The
// fallback wins when it is newer or when it took writes while degraded; in
// the latter case its version is moved past the primary's. Otherwise a
// lagging fallback is refreshed from the primary. Callers hold f.mu.
func (f *FailoverStore) resync(ctx context.Context) error {
	primaryDoc, err := f.primary.Load(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	fallbackDoc, ferr := f.fallback.Load(ctx)
	if errors.Is(ferr, ErrNotFound) {
		return nil
	}
	if ferr != nil {
		f.logger.Warn().Err(ferr).Msg("Fallback store unreadable during resync")
		return nil
	}

	switch {
	case fallbackDoc.Version > primaryDoc.Version:
	case f.degradedWrites && !bytes.Equal(fallbackDoc.Body, primaryDoc.Body):
		fallbackDoc.Version = primaryDoc.Version + 1
		fallbackDoc.UpdatedAt = time.Now().UTC()
		if err := f.fallback.Put(ctx, fallbackDoc); err != nil {
			f.logger.Warn().Err(err).Msg("Failed to renumber fallback document")
		}
	default:
		if fallbackDoc.Version < primaryDoc.Version {
			if err := f.fallback.Put(ctx, primaryDoc); err != nil {
				f.logger.Warn().Err(err).Msg("Failed to refresh fallback store")
			} else {
				f.fallbackStale = false
			}
		}
		f.degradedWrites = false
		f.last = copyDocument(primaryDoc)
		return nil
	}

	f.logger.Info().
		Int64("primary_version", primaryDoc.Version).
		Int64("fallback_version", fallbackDoc.Version).
		Msg("Pushing fallback document to primary")
	if err := f.primary.Put(ctx, fallbackDoc); err != nil {
		return err
	}
	f.degradedWrites = false
	f.fallbackStale = false
	f.last = copyDocument(fallbackDoc)
	return nil
}
