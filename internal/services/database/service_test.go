package database_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherdb/internal/domain"
	"cipherdb/internal/errs"
	"cipherdb/internal/protocol/wire"
	"cipherdb/internal/services/database"
)

const eventually = 2 * time.Second

func ids(items []domain.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func payload(t *testing.T, items []domain.Item, id string) string {
	t.Helper()
	for _, it := range items {
		if it.ID == id {
			return string(it.Payload)
		}
	}
	t.Fatalf("item %q not found", id)
	return ""
}

func TestOpenInsertUpdateDelete(t *testing.T) {
	relay := newFakeRelay()
	svc, _ := relay.device(t, "alice", relay.account(t, "alice"), nil, database.Config{})
	ctx := context.Background()

	var mu sync.Mutex
	var last []domain.Item
	require.NoError(t, svc.Open(ctx, "todos", func(items []domain.Item) {
		mu.Lock()
		last = items
		mu.Unlock()
	}))

	items, err := svc.Items("todos")
	require.NoError(t, err)
	assert.Empty(t, items)

	id, err := svc.Insert(ctx, "todos", "a", json.RawMessage(`{"todo":"milk"}`))
	require.NoError(t, err)
	assert.Equal(t, "a", id)
	_, err = svc.Insert(ctx, "todos", "b", json.RawMessage(`{"todo":"eggs"}`))
	require.NoError(t, err)
	require.NoError(t, svc.Update(ctx, "todos", "a", json.RawMessage(`{"todo":"oat milk"}`)))

	items, err = svc.Items("todos")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(items))
	assert.JSONEq(t, `{"todo":"oat milk"}`, payload(t, items, "a"))

	require.NoError(t, svc.Delete(ctx, "todos", "a"))
	items, err = svc.Items("todos")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(items))

	mu.Lock()
	assert.Equal(t, []string{"b"}, ids(last))
	mu.Unlock()
}

func TestInsertGeneratesID(t *testing.T) {
	relay := newFakeRelay()
	svc, _ := relay.device(t, "alice", relay.account(t, "alice"), nil, database.Config{})
	ctx := context.Background()
	require.NoError(t, svc.Open(ctx, "notes", nil))

	id, err := svc.Insert(ctx, "notes", "", json.RawMessage(`"hello"`))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	items, err := svc.Items("notes")
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids(items))
}

func TestWriteErrorsAreLocal(t *testing.T) {
	relay := newFakeRelay()
	svc, _ := relay.device(t, "alice", relay.account(t, "alice"), nil, database.Config{})
	ctx := context.Background()
	require.NoError(t, svc.Open(ctx, "db", nil))
	_, err := svc.Insert(ctx, "db", "x", json.RawMessage(`1`))
	require.NoError(t, err)
	sent := relay.count(wire.ActionInsert) + relay.count(wire.ActionUpdate) + relay.count(wire.ActionDelete)

	long := make([]byte, database.MaxItemIDLength+1)
	for i := range long {
		long[i] = 'x'
	}
	big := json.RawMessage(fmt.Sprintf("%q", make([]byte, database.MaxItemSize)))

	tests := []struct {
		name string
		call func() error
		want *errs.Error
	}{
		{"missing id", func() error { return svc.Update(ctx, "db", "", json.RawMessage(`1`)) }, errs.ErrItemIDMissing},
		{"long id", func() error { return svc.Delete(ctx, "db", string(long)) }, errs.ErrItemIDTooLong},
		{"missing item", func() error { return svc.Update(ctx, "db", "x", nil) }, errs.ErrItemMissing},
		{"too large", func() error { return svc.Update(ctx, "db", "x", big) }, errs.ErrItemTooLarge},
		{"invalid json", func() error { return svc.Update(ctx, "db", "x", json.RawMessage(`{`)) }, errs.ErrItemInvalid},
		{"missing name", func() error { return svc.Delete(ctx, "", "x") }, errs.ErrDatabaseNameMissing},
		{"not open", func() error { return svc.Delete(ctx, "other", "x") }, errs.ErrDatabaseNotOpen},
		{"exists", func() error { _, err := svc.Insert(ctx, "db", "x", json.RawMessage(`2`)); return err }, errs.ErrItemAlreadyExists},
		{"absent", func() error { return svc.Delete(ctx, "db", "y") }, errs.ErrItemDoesNotExist},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.call(), tc.want)
		})
	}
	assert.Equal(t, sent, relay.count(wire.ActionInsert)+relay.count(wire.ActionUpdate)+relay.count(wire.ActionDelete))
}

func TestOpenRequiresKeys(t *testing.T) {
	relay := newFakeRelay()
	svc, _ := relay.device(t, "alice", nil, nil, database.Config{})
	err := svc.Open(context.Background(), "db", nil)
	assert.ErrorIs(t, err, errs.ErrUserNotSignedIn)

	_, err = svc.Items("db")
	assert.ErrorIs(t, err, errs.ErrDatabaseNotOpen)
}

func TestPutTransaction(t *testing.T) {
	relay := newFakeRelay()
	svc, _ := relay.device(t, "alice", relay.account(t, "alice"), nil, database.Config{})
	ctx := context.Background()
	require.NoError(t, svc.Open(ctx, "db", nil))
	_, err := svc.Insert(ctx, "db", "old", json.RawMessage(`0`))
	require.NoError(t, err)

	require.NoError(t, svc.PutTransaction(ctx, "db", []domain.WriteOp{
		{Command: domain.CommandInsert, ItemID: "b", Item: json.RawMessage(`2`)},
		{Command: domain.CommandInsert, ItemID: "a", Item: json.RawMessage(`1`)},
		{Command: domain.CommandDelete, ItemID: "old"},
	}))
	items, err := svc.Items("db")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(items), "batch position orders items of one entry")

	err = svc.PutTransaction(ctx, "db", []domain.WriteOp{
		{Command: domain.CommandUpdate, ItemID: "a", Item: json.RawMessage(`3`)},
		{Command: domain.CommandDelete, ItemID: "a"},
	})
	assert.ErrorIs(t, err, errs.ErrOperationsConflict)

	err = svc.PutTransaction(ctx, "db", nil)
	assert.ErrorIs(t, err, errs.ErrOperationsMissing)

	tooMany := make([]domain.WriteOp, database.MaxOperations+1)
	for i := range tooMany {
		tooMany[i] = domain.WriteOp{Command: domain.CommandInsert, ItemID: fmt.Sprint(i), Item: json.RawMessage(`1`)}
	}
	err = svc.PutTransaction(ctx, "db", tooMany)
	assert.ErrorIs(t, err, errs.ErrOperationsExceedLimit)
	assert.Equal(t, 1, relay.count(wire.ActionBatchTransaction))
}

func TestDevicesConverge(t *testing.T) {
	relay := newFakeRelay()
	ks := relay.account(t, "alice")
	laptop, _ := relay.device(t, "alice", ks, nil, database.Config{})
	phone, _ := relay.device(t, "alice", ks, nil, database.Config{})
	ctx := context.Background()

	require.NoError(t, laptop.Open(ctx, "db", nil))
	_, err := laptop.Insert(ctx, "db", "a", json.RawMessage(`1`))
	require.NoError(t, err)

	require.NoError(t, phone.Open(ctx, "db", nil))
	_, err = phone.Insert(ctx, "db", "b", json.RawMessage(`2`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		items, err := laptop.Items("db")
		return err == nil && len(items) == 2
	}, eventually, 10*time.Millisecond)
	a, _ := laptop.Items("db")
	b, _ := phone.Items("db")
	assert.Equal(t, a, b)
}

func TestStaleUpdateConflicts(t *testing.T) {
	relay := newFakeRelay()
	ks := relay.account(t, "alice")
	laptop, _ := relay.device(t, "alice", ks, nil, database.Config{})
	phone, phoneDev := relay.device(t, "alice", ks, nil, database.Config{})
	ctx := context.Background()

	require.NoError(t, laptop.Open(ctx, "db", nil))
	_, err := laptop.Insert(ctx, "db", "a", json.RawMessage(`1`))
	require.NoError(t, err)
	require.NoError(t, phone.Open(ctx, "db", nil))

	// The phone does not see the laptop's update before writing its own.
	phoneDev.setHold()
	require.NoError(t, laptop.Update(ctx, "db", "a", json.RawMessage(`"laptop"`)))

	done := make(chan error, 1)
	go func() {
		done <- phone.Update(ctx, "db", "a", json.RawMessage(`"phone"`))
	}()
	require.Eventually(t, func() bool { return relay.count(wire.ActionUpdate) == 2 }, eventually, 5*time.Millisecond)
	phoneDev.release()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errs.ErrItemUpdateConflict)
	case <-time.After(eventually):
		t.Fatal("update did not settle")
	}
	items, err := phone.Items("db")
	require.NoError(t, err)
	assert.JSONEq(t, `"laptop"`, payload(t, items, "a"))
}

func TestWriteTimesOut(t *testing.T) {
	relay := newFakeRelay()
	svc, dev := relay.device(t, "alice", relay.account(t, "alice"), nil, database.Config{WriteTimeout: 30 * time.Millisecond})
	ctx := context.Background()
	require.NoError(t, svc.Open(ctx, "db", nil))

	dev.setHold()
	_, err := svc.Insert(ctx, "db", "a", json.RawMessage(`1`))
	assert.ErrorIs(t, err, errs.ErrTimeout)
}

func TestCloseSettlesPendingWrites(t *testing.T) {
	relay := newFakeRelay()
	svc, dev := relay.device(t, "alice", relay.account(t, "alice"), nil, database.Config{WriteTimeout: time.Minute})
	ctx := context.Background()
	require.NoError(t, svc.Open(ctx, "db", nil))

	dev.setHold()
	done := make(chan error, 1)
	go func() {
		_, err := svc.Insert(ctx, "db", "a", json.RawMessage(`1`))
		done <- err
	}()
	require.Eventually(t, func() bool { return relay.count(wire.ActionInsert) == 1 }, eventually, 5*time.Millisecond)
	svc.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errs.ErrClosed)
	case <-time.After(eventually):
		t.Fatal("insert did not settle")
	}
}

func TestGapResubscribes(t *testing.T) {
	relay := newFakeRelay()
	ks := relay.account(t, "alice")
	writer, _ := relay.device(t, "alice", ks, nil, database.Config{})
	reader, readerDev := relay.device(t, "alice", ks, nil, database.Config{})
	ctx := context.Background()

	require.NoError(t, writer.Open(ctx, "db", nil))
	require.NoError(t, reader.Open(ctx, "db", nil))
	opens := relay.count(wire.ActionOpenDatabase)

	readerDev.dropNext(1)
	for _, id := range []string{"a", "b", "c"} {
		_, err := writer.Insert(ctx, "db", id, json.RawMessage(`1`))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		items, err := reader.Items("db")
		return err == nil && len(items) == 3
	}, eventually, 10*time.Millisecond)
	assert.Greater(t, relay.count(wire.ActionOpenDatabase), opens)
}

func TestBundleUploadAndColdOpen(t *testing.T) {
	relay := newFakeRelay()
	relay.bundleEvery = 3
	ks := relay.account(t, "alice")
	svc, _ := relay.device(t, "alice", ks, nil, database.Config{ChunkSize: 64})
	ctx := context.Background()
	require.NoError(t, svc.Open(ctx, "db", nil))

	for i := range 4 {
		_, err := svc.Insert(ctx, "db", fmt.Sprintf("item-%d", i), json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)))
		require.NoError(t, err)
	}
	hash := ks.HashName("db")
	require.Eventually(t, func() bool { return relay.storedBundle("alice", hash) != nil }, eventually, 10*time.Millisecond)
	b := relay.storedBundle("alice", hash)
	assert.GreaterOrEqual(t, b.SeqNo, uint64(3))
	assert.NotEmpty(t, b.ItemKeys)

	_, err := svc.Insert(ctx, "db", "late", json.RawMessage(`{}`))
	require.NoError(t, err)

	fresh, _ := relay.device(t, "alice", ks, nil, database.Config{})
	require.NoError(t, fresh.Open(ctx, "db", nil))
	want, err := svc.Items("db")
	require.NoError(t, err)
	got, err := fresh.Items("db")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestShareAndAccept(t *testing.T) {
	relay := newFakeRelay()
	aliceConfirm := &fakeConfirmer{grant: true}
	bobConfirm := &fakeConfirmer{accept: true}
	alice, _ := relay.device(t, "alice", relay.account(t, "alice"), aliceConfirm, database.Config{})
	bob, _ := relay.device(t, "bob", relay.account(t, "bob"), bobConfirm, database.Config{RequireSignedGrants: true})
	ctx := context.Background()

	require.NoError(t, alice.Open(ctx, "shared", nil))
	_, err := alice.Insert(ctx, "shared", "a", json.RawMessage(`"from alice"`))
	require.NoError(t, err)

	require.NoError(t, alice.Share(ctx, "shared", "bob", true))
	require.Len(t, aliceConfirm.prompts, 1)
	assert.Equal(t, domain.Username("bob"), aliceConfirm.prompts[0].Peer)
	assert.NotEmpty(t, aliceConfirm.prompts[0].Fingerprint)

	n, err := bob.AcceptGrants(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, bobConfirm.prompts, 1)
	assert.Equal(t, "shared", bobConfirm.prompts[0].Database)
	assert.True(t, bobConfirm.prompts[0].ReadOnly)

	require.NoError(t, bob.Open(ctx, "shared", nil))
	items, err := bob.Items("shared")
	require.NoError(t, err)
	assert.JSONEq(t, `"from alice"`, payload(t, items, "a"))

	_, err = bob.Insert(ctx, "shared", "b", json.RawMessage(`1`))
	assert.ErrorIs(t, err, errs.ErrDatabaseIsReadOnly)

	_, err = alice.Insert(ctx, "shared", "c", json.RawMessage(`"later"`))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		items, err := bob.Items("shared")
		return err == nil && len(items) == 2
	}, eventually, 10*time.Millisecond)
}

func TestShareDeclinedSendsNothing(t *testing.T) {
	relay := newFakeRelay()
	alice, _ := relay.device(t, "alice", relay.account(t, "alice"), &fakeConfirmer{grant: false}, database.Config{})
	relay.account(t, "bob")
	ctx := context.Background()
	require.NoError(t, alice.Open(ctx, "db", nil))

	err := alice.Share(ctx, "db", "bob", false)
	assert.ErrorIs(t, err, errs.ErrGrantDeclined)
	assert.Zero(t, relay.count(wire.ActionGrantDatabaseAccess))

	err = alice.Share(ctx, "db", "carol", false)
	assert.ErrorIs(t, err, errs.ErrUserNotFound)

	err = alice.Share(ctx, "db", "", false)
	assert.ErrorIs(t, err, errs.ErrUsernameMissing)
}

func TestDeclinedGrantIsNotAccepted(t *testing.T) {
	relay := newFakeRelay()
	alice, _ := relay.device(t, "alice", relay.account(t, "alice"), &fakeConfirmer{grant: true}, database.Config{})
	bob, _ := relay.device(t, "bob", relay.account(t, "bob"), &fakeConfirmer{accept: false}, database.Config{})
	ctx := context.Background()
	require.NoError(t, alice.Open(ctx, "db", nil))
	require.NoError(t, alice.Share(ctx, "db", "bob", false))

	n, err := bob.AcceptGrants(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, relay.count(wire.ActionAcceptDatabaseAccess))
}

func TestReconnectResubscribesFromLastApplied(t *testing.T) {
	relay := newFakeRelay()
	svc, _ := relay.device(t, "alice", relay.account(t, "alice"), nil, database.Config{})
	ctx := context.Background()
	require.NoError(t, svc.Open(ctx, "db", nil))
	_, err := svc.Insert(ctx, "db", "a", json.RawMessage(`1`))
	require.NoError(t, err)

	opens := relay.count(wire.ActionOpenDatabase)
	svc.OnReconnecting()
	svc.OnConnected(true)
	require.Eventually(t, func() bool { return relay.count(wire.ActionOpenDatabase) == opens+1 }, eventually, 5*time.Millisecond)

	svc.OnConnected(false)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, opens+1, relay.count(wire.ActionOpenDatabase))

	items, err := svc.Items("db")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(items))
}
