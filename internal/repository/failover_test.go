package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Load(ctx context.Context) (Document, error) {
	args := m.Called(ctx)
	return args.Get(0).(Document), args.Error(1)
}

func (m *mockStore) Save(ctx context.Context, body []byte, expectedVersion int64) (int64, error) {
	args := m.Called(ctx, body, expectedVersion)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) Put(ctx context.Context, doc Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *mockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestFailoverStore(t *testing.T) {
	primary := new(mockStore)
	fallback := new(mockStore)
	logger := zerolog.New(io.Discard)
	store := NewFailoverStore(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		doc := Document{Body: []byte(`{}`), Version: 3}
		primary.On("Load", ctx).Return(doc, nil).Once()

		got, err := store.Load(ctx)
		assert.NoError(t, err)
		assert.Equal(t, doc, got)
		primary.AssertExpectations(t)
	})

	t.Run("SaveMirrorsToFallback", func(t *testing.T) {
		body := []byte(`{"name":"x"}`)
		primary.On("Save", ctx, body, int64(3)).Return(int64(4), nil).Once()
		fallback.On("Put", ctx, mock.MatchedBy(func(d Document) bool {
			return d.Version == 4 && string(d.Body) == string(body)
		})).Return(nil).Once()

		version, err := store.Save(ctx, body, 3)
		assert.NoError(t, err)
		assert.Equal(t, int64(4), version)
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("ConflictIsNotAFailure", func(t *testing.T) {
		body := []byte(`{}`)
		primary.On("Save", ctx, body, int64(1)).Return(int64(0), ErrVersionConflict).Once()

		_, err := store.Save(ctx, body, 1)
		assert.ErrorIs(t, err, ErrVersionConflict)
		assert.False(t, store.Degraded())
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		doc := Document{Body: []byte(`{}`), Version: 4}
		primary.On("Load", ctx).Return(Document{}, errors.New("connection refused")).Once()
		fallback.On("Load", ctx).Return(doc, nil).Once()

		got, err := store.Load(ctx)
		assert.NoError(t, err)
		assert.Equal(t, doc, got)
		assert.True(t, store.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("DownPrimaryIsSkipped", func(t *testing.T) {
		body := []byte(`{"v":5}`)
		fallback.On("Save", ctx, body, int64(4)).Return(int64(5), nil).Once()

		version, err := store.Save(ctx, body, 4)
		require.NoError(t, err)
		assert.Equal(t, int64(5), version)
		primary.AssertNotCalled(t, "Save", ctx, body, int64(4))
	})

	t.Run("RecoveryPushesNewerFallback", func(t *testing.T) {
		store.isDown.Store(true)
		store.lastCheck = time.Now().Add(-2 * time.Minute)

		stale := Document{Body: []byte(`{"v":4}`), Version: 4}
		newer := Document{Body: []byte(`{"v":5}`), Version: 5}
		primary.On("Load", ctx).Return(stale, nil).Once()
		fallback.On("Load", ctx).Return(newer, nil).Once()
		primary.On("Put", ctx, newer).Return(nil).Once()
		primary.On("Load", ctx).Return(newer, nil).Once()

		got, err := store.Load(ctx)
		assert.NoError(t, err)
		assert.Equal(t, newer, got)
		assert.False(t, store.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryProbeFails", func(t *testing.T) {
		store.isDown.Store(true)
		store.lastCheck = time.Now().Add(-2 * time.Minute)

		doc := Document{Body: []byte(`{}`), Version: 5}
		primary.On("Load", ctx).Return(Document{}, errors.New("still down")).Once()
		fallback.On("Load", ctx).Return(doc, nil).Once()

		got, err := store.Load(ctx)
		assert.NoError(t, err)
		assert.Equal(t, doc, got)
		assert.True(t, store.Degraded())
	})
}

func TestFailoverStore_WithRealStores(t *testing.T) {
	logger := zerolog.New(io.Discard)
	primary := NewMemoryStore()
	fallback := NewMemoryStore()
	store := NewFailoverStore(primary, fallback, &logger)
	ctx := context.Background()

	v, err := store.Save(ctx, []byte(`{"a":1}`), 0)
	require.NoError(t, err)

	mirrored, err := fallback.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, v, mirrored.Version)
	assert.JSONEq(t, `{"a":1}`, string(mirrored.Body))
}

func TestFailoverStore_EmptyPrimaryRestoredFromFallback(t *testing.T) {
	logger := zerolog.New(io.Discard)
	primary, mr := newRedisStore(t)
	fallback := NewMemoryStore()
	store := NewFailoverStore(primary, fallback, &logger)
	ctx := context.Background()

	v, err := store.Save(ctx, []byte(`{"laundry":["Anna"]}`), 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), v)

	mr.FlushAll()

	doc, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Version)
	assert.JSONEq(t, `{"laundry":["Anna"]}`, string(doc.Body))

	restored, err := primary.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), restored.Version)

	v, err = store.Save(ctx, []byte(`{"laundry":["Anna","Marco"]}`), doc.Version)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	mirrored, err := fallback.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), mirrored.Version)
	assert.JSONEq(t, `{"laundry":["Anna","Marco"]}`, string(mirrored.Body))
	assert.False(t, store.Degraded())
}

func TestFailoverStore_EmptyPrimaryAndFallback(t *testing.T) {
	logger := zerolog.New(io.Discard)
	primary, _ := newRedisStore(t)
	store := NewFailoverStore(primary, NewMemoryStore(), &logger)

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFailoverStore_MirrorFailureThenDegradedWrite(t *testing.T) {
	primary := new(mockStore)
	fallback := new(mockStore)
	logger := zerolog.New(io.Discard)
	store := NewFailoverStore(primary, fallback, &logger)
	ctx := context.Background()

	v10 := []byte(`{"v":10}`)
	v11 := []byte(`{"v":11}`)
	version := func(v int64, body []byte) interface{} {
		return mock.MatchedBy(func(d Document) bool {
			return d.Version == v && string(d.Body) == string(body)
		})
	}

	primary.On("Save", ctx, v10, int64(9)).Return(int64(10), nil).Once()
	fallback.On("Put", ctx, version(10, v10)).Return(errors.New("disk full")).Once()

	got, err := store.Save(ctx, v10, 9)
	require.NoError(t, err)
	require.Equal(t, int64(10), got)

	// the fallback missed v10, so it is caught up when the primary drops
	primary.On("Load", ctx).Return(Document{}, errors.New("connection refused")).Once()
	fallback.On("Put", ctx, version(10, v10)).Return(nil).Once()
	fallback.On("Load", ctx).Return(Document{Body: v10, Version: 10}, nil).Once()

	doc, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), doc.Version)
	assert.True(t, store.Degraded())

	fallback.On("Save", ctx, v11, int64(10)).Return(int64(11), nil).Once()
	got, err = store.Save(ctx, v11, 10)
	require.NoError(t, err)
	require.Equal(t, int64(11), got)

	store.lastCheck = time.Now().Add(-2 * time.Minute)
	primary.On("Load", ctx).Return(Document{Body: v10, Version: 10}, nil).Once()
	fallback.On("Load", ctx).Return(Document{Body: v11, Version: 11}, nil).Once()
	primary.On("Put", ctx, version(11, v11)).Return(nil).Once()
	primary.On("Load", ctx).Return(Document{Body: v11, Version: 11}, nil).Once()

	doc, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(11), doc.Version)
	assert.False(t, store.Degraded())
	primary.AssertExpectations(t)
	fallback.AssertExpectations(t)
}

func TestFailoverStore_DegradedWritesOnOlderBaseAreKept(t *testing.T) {
	primary := new(mockStore)
	fallback := new(mockStore)
	logger := zerolog.New(io.Discard)
	store := NewFailoverStore(primary, fallback, &logger)
	ctx := context.Background()

	store.isDown.Store(true)
	store.lastCheck = time.Now()

	degraded := []byte(`{"v":"degraded"}`)
	fallback.On("Save", ctx, degraded, int64(8)).Return(int64(9), nil).Once()
	_, err := store.Save(ctx, degraded, 8)
	require.NoError(t, err)

	renumbered := mock.MatchedBy(func(d Document) bool {
		return d.Version == 11 && string(d.Body) == string(degraded)
	})
	store.lastCheck = time.Now().Add(-2 * time.Minute)
	primary.On("Load", ctx).Return(Document{Body: []byte(`{"v":10}`), Version: 10}, nil).Once()
	fallback.On("Load", ctx).Return(Document{Body: degraded, Version: 9}, nil).Once()
	fallback.On("Put", ctx, renumbered).Return(nil).Once()
	primary.On("Put", ctx, renumbered).Return(nil).Once()
	primary.On("Load", ctx).Return(Document{Body: degraded, Version: 11}, nil).Once()

	doc, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(11), doc.Version)
	assert.Equal(t, degraded, doc.Body)
	primary.AssertExpectations(t)
	fallback.AssertExpectations(t)
}

func TestFailoverStore_RecoveryRefreshesLaggingFallback(t *testing.T) {
	primary := new(mockStore)
	fallback := new(mockStore)
	logger := zerolog.New(io.Discard)
	store := NewFailoverStore(primary, fallback, &logger)
	ctx := context.Background()

	store.isDown.Store(true)
	store.lastCheck = time.Now().Add(-2 * time.Minute)

	current := Document{Body: []byte(`{"v":10}`), Version: 10}
	primary.On("Load", ctx).Return(current, nil).Twice()
	fallback.On("Load", ctx).Return(Document{Body: []byte(`{"v":8}`), Version: 8}, nil).Once()
	fallback.On("Put", ctx, current).Return(nil).Once()

	doc, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, current, doc)
	primary.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	fallback.AssertExpectations(t)
}
