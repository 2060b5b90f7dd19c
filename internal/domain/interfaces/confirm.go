package interfaces

import (
	"context"

	domaintypes "cipherdb/internal/domain/types"
)

// Confirmer is the human decision point for key exchange. Returning false
// declines; nothing is sent for a declined request.
type Confirmer interface {
	// ConfirmSeedRequest is asked on a device holding the seed when another
	// device of the same account requests it.
	ConfirmSeedRequest(ctx context.Context, fp domaintypes.Fingerprint) (bool, error)
	// ConfirmGrant is asked before a database key is sent to another user.
	ConfirmGrant(ctx context.Context, p domaintypes.GrantPrompt) (bool, error)
	// ConfirmAccept is asked before a received grant is accepted.
	ConfirmAccept(ctx context.Context, p domaintypes.GrantPrompt) (bool, error)
}
