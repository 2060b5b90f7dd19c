package interfaces

import (
	"context"
	"encoding/json"

	domaintypes "cipherdb/internal/domain/types"
)

// DatabaseService opens databases, writes to them and reads their replicas.
type DatabaseService interface {
	Open(ctx context.Context, name string, onChange func([]domaintypes.Item)) error
	Insert(ctx context.Context, db, itemID string, item json.RawMessage) (string, error)
	Update(ctx context.Context, db, itemID string, item json.RawMessage) error
	Delete(ctx context.Context, db, itemID string) error
	PutTransaction(ctx context.Context, db string, ops []domaintypes.WriteOp) error
	Items(db string) ([]domaintypes.Item, error)
	Share(ctx context.Context, db string, user domaintypes.Username, readOnly bool) error
	AcceptGrants(ctx context.Context) (int, error)
}

// SessionService signs a device in and out and manages its seed.
type SessionService interface {
	SignIn(ctx context.Context, p domaintypes.SignInParams) error
	ProvideSeed(seed string) error
	SignOut(ctx context.Context) error
	UpdateUser(ctx context.Context, p domaintypes.UserUpdate) error
	DeleteUser(ctx context.Context) error
	BackupSeed(ctx context.Context, password string) error
	RecoverSeed(password string, salt, blob []byte) error
}
