package bundle_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherdb/internal/domain"
	"cipherdb/internal/errs"
	"cipherdb/internal/keys"
	"cipherdb/internal/protocol/bundle"
)

func snapshot(n int) domain.Snapshot {
	s := domain.Snapshot{Seq: uint64(n + 10), Items: map[string]domain.StoredItem{}}
	for i := 0; i < n; i++ {
		op := i % 3
		s.Items[fmt.Sprintf("item-%03d", i)] = domain.StoredItem{
			Seq:     uint64(i + 1),
			OpIndex: &op,
			Payload: json.RawMessage(fmt.Sprintf(`{"n":%d,"pad":"%0100d"}`, i, i)),
			Version: uint64(i%4 + 1),
		}
	}
	return s
}

func TestBuildOpenRoundTrip(t *testing.T) {
	dk, err := keys.NewDatabaseKey()
	require.NoError(t, err)
	in := snapshot(200)

	b, err := bundle.Build(in, dk, "db-1", 512)
	require.NoError(t, err)
	assert.Greater(t, len(b.Chunks), 1, "small chunk size should split")
	assert.Len(t, b.ItemKeys, 200)
	assert.Equal(t, in.Seq, b.SeqNo)

	out, err := bundle.Open(b, dk, "db-1")
	require.NoError(t, err)
	assert.Equal(t, in.Seq, out.Seq)
	require.Len(t, out.Items, len(in.Items))
	for id, want := range in.Items {
		got := out.Items[id]
		assert.Equal(t, want.Seq, got.Seq)
		assert.Equal(t, *want.OpIndex, *got.OpIndex)
		assert.JSONEq(t, string(want.Payload), string(got.Payload))
		assert.Equal(t, want.Version, got.Version)
	}
}

func TestOpenEmptySnapshot(t *testing.T) {
	dk, err := keys.NewDatabaseKey()
	require.NoError(t, err)
	b, err := bundle.Build(domain.Snapshot{Seq: 3}, dk, "db", 0)
	require.NoError(t, err)
	out, err := bundle.Open(b, dk, "db")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), out.Seq)
	assert.Empty(t, out.Items)
}

func TestOpenRejectsTamperedBundles(t *testing.T) {
	dk, err := keys.NewDatabaseKey()
	require.NoError(t, err)
	b, err := bundle.Build(snapshot(100), dk, "db-1", 256)
	require.NoError(t, err)
	require.Greater(t, len(b.Chunks), 2)

	t.Run("wrong database", func(t *testing.T) {
		_, err := bundle.Open(b, dk, "db-2")
		assert.ErrorIs(t, err, errs.ErrKeyNotValid)
	})
	t.Run("swapped chunks", func(t *testing.T) {
		cp := *b
		cp.Chunks = append([][]byte(nil), b.Chunks...)
		cp.Chunks[0], cp.Chunks[1] = cp.Chunks[1], cp.Chunks[0]
		_, err := bundle.Open(&cp, dk, "db-1")
		assert.ErrorIs(t, err, errs.ErrKeyNotValid)
	})
	t.Run("dropped chunk", func(t *testing.T) {
		cp := *b
		cp.Chunks = b.Chunks[:len(b.Chunks)-1]
		_, err := bundle.Open(&cp, dk, "db-1")
		assert.ErrorIs(t, err, errs.ErrKeyNotValid)
	})
	t.Run("wrong sequence", func(t *testing.T) {
		cp := *b
		cp.SeqNo++
		_, err := bundle.Open(&cp, dk, "db-1")
		assert.ErrorIs(t, err, errs.ErrKeyNotValid)
	})
	t.Run("wrong key", func(t *testing.T) {
		other, err := keys.NewDatabaseKey()
		require.NoError(t, err)
		_, err = bundle.Open(b, other, "db-1")
		assert.ErrorIs(t, err, errs.ErrKeyNotValid)
	})
	t.Run("empty", func(t *testing.T) {
		_, err := bundle.Open(nil, dk, "db-1")
		assert.Error(t, err)
	})
}
