package slots

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/mindcare-booking/internal/docstore"
	"github.com/wolfman30/mindcare-booking/internal/docstore/memstore"
)

func seed(t *testing.T, store *docstore.Store, taken map[string]any) {
	t.Helper()
	require.NoError(t, store.RunTransaction(context.Background(), func(ctx context.Context, tx *docstore.Tx) error {
		tx.Set(Path("doc1", "2025-06-01"), map[string]any{"taken": taken})
		return nil
	}))
}

func TestReadAbsentDayIsEmpty(t *testing.T) {
	store := docstore.New(memstore.New())
	m, err := Read(context.Background(), store, "doc1", "2025-06-01")
	require.NoError(t, err)
	assert.Empty(t, m.Taken)
	assert.True(t, m.IsFree("14:00"))
}

type failingReader struct{}

func (failingReader) Get(context.Context, docstore.Path) (*docstore.Snapshot, error) {
	return nil, docstore.Unavailable("get", errors.New("network down"))
}

func TestReadSurfacesFailures(t *testing.T) {
	_, err := Read(context.Background(), failingReader{}, "doc1", "2025-06-01")
	assert.ErrorIs(t, err, docstore.ErrUnavailable)
}

func TestOwnerAndLabels(t *testing.T) {
	store := docstore.New(memstore.New())
	seed(t, store, map[string]any{"14:00": "a1", "10:00": "a2"})

	m, err := Read(context.Background(), store, "doc1", "2025-06-01")
	require.NoError(t, err)
	owner, ok := m.Owner("14:00")
	assert.True(t, ok)
	assert.Equal(t, "a1", owner)
	assert.Equal(t, []string{"10:00", "14:00"}, m.Labels())
	assert.False(t, m.IsFree("10:00"))
}

func TestReserveKeepsOtherEntries(t *testing.T) {
	store := docstore.New(memstore.New())
	seed(t, store, map[string]any{"10:00": "a2"})
	ctx := context.Background()

	require.NoError(t, store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		m, err := ReadTx(ctx, tx, "doc1", "2025-06-01")
		if err != nil {
			return err
		}
		return Reserve(tx, m, "14:00", "a1")
	}))

	m, err := Read(ctx, store, "doc1", "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"10:00": "a2", "14:00": "a1"}, m.Taken)
}

func TestReserveRejectsTakenTime(t *testing.T) {
	store := docstore.New(memstore.New())
	seed(t, store, map[string]any{"14:00": "a2"})

	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx *docstore.Tx) error {
		m, err := ReadTx(ctx, tx, "doc1", "2025-06-01")
		if err != nil {
			return err
		}
		return Reserve(tx, m, "14:00", "a1")
	})
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestReleaseOnlyForOwner(t *testing.T) {
	store := docstore.New(memstore.New())
	seed(t, store, map[string]any{"14:00": "a2"})
	ctx := context.Background()

	var released bool
	require.NoError(t, store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		m, err := ReadTx(ctx, tx, "doc1", "2025-06-01")
		if err != nil {
			return err
		}
		released = Release(tx, m, "14:00", "a1")
		return nil
	}))
	assert.False(t, released)

	m, err := Read(ctx, store, "doc1", "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, "a2", m.Taken["14:00"])

	require.NoError(t, store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		m, err := ReadTx(ctx, tx, "doc1", "2025-06-01")
		if err != nil {
			return err
		}
		released = Release(tx, m, "14:00", "a2")
		return nil
	}))
	assert.True(t, released)

	m, err = Read(ctx, store, "doc1", "2025-06-01")
	require.NoError(t, err)
	assert.True(t, m.IsFree("14:00"))
}
