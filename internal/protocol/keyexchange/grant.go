package keyexchange

import (
	"bytes"
	"encoding/binary"

	"cipherdb/internal/crypto"
	"cipherdb/internal/domain"
	"cipherdb/internal/errs"
	"cipherdb/internal/keys"
)

const (
	grantKeyAAD  = "cipherdb/grant/key"
	grantNameAAD = "cipherdb/grant/name"
	grantSigCtx  = "cipherdb/grant/v1"
)

// GrantInput is what the grantor knows when sharing a database.
type GrantInput struct {
	DatabaseID   domain.DatabaseID
	NameHash     domain.NameHash
	Name         string
	Sender       domain.Username
	SenderKeys   keys.KeyPair
	RecipientPub domain.X25519Public
	Key          *keys.DatabaseKey
	ReadOnly     bool
	Signing      *keys.SigningKeyPair
}

// WrapDatabaseKey builds a grant sealing the database key and name for the
// recipient. The grant is signed when in.Signing is set.
func WrapDatabaseKey(in GrantInput) (domain.DatabaseGrant, error) {
	k, err := crypto.SharedKey(in.SenderKeys.Private, in.RecipientPub)
	if err != nil {
		return domain.DatabaseGrant{}, errs.Wrap(errs.CodeKeyNotValid, err, "recipient key")
	}
	defer crypto.Wipe(k[:])

	raw := in.Key.Bytes()
	defer crypto.Wipe(raw)
	wrapped, err := crypto.Seal(k[:], raw, aad(grantKeyAAD, in.DatabaseID))
	if err != nil {
		return domain.DatabaseGrant{}, err
	}
	name, err := crypto.Seal(k[:], []byte(in.Name), aad(grantNameAAD, in.DatabaseID))
	if err != nil {
		return domain.DatabaseGrant{}, err
	}
	g := domain.DatabaseGrant{
		DatabaseID:      in.DatabaseID,
		NameHash:        in.NameHash,
		Sender:          in.Sender,
		SenderPublicKey: in.SenderKeys.Public,
		EncryptedName:   name,
		WrappedKey:      wrapped,
		ReadOnly:        in.ReadOnly,
	}
	if in.Signing != nil {
		g.SenderVerifyingKey = in.Signing.Public
		g.Signature = crypto.SignEd25519(in.Signing.Private, grantMessage(g, in.RecipientPub))
	}
	return g, nil
}

// UnwrapDatabaseKey opens a grant addressed to recipientPriv and returns
// the database key and its name.
func UnwrapDatabaseKey(recipientPriv domain.X25519Private, g domain.DatabaseGrant) (*keys.DatabaseKey, string, error) {
	k, err := crypto.SharedKey(recipientPriv, g.SenderPublicKey)
	if err != nil {
		return nil, "", errs.Wrap(errs.CodeKeyNotValid, err, "sender key")
	}
	defer crypto.Wipe(k[:])

	raw, err := crypto.Open(k[:], g.WrappedKey, aad(grantKeyAAD, g.DatabaseID))
	if err != nil {
		return nil, "", errs.Wrap(errs.CodeKeyNotValid, err, "database key")
	}
	defer crypto.Wipe(raw)
	name, err := crypto.Open(k[:], g.EncryptedName, aad(grantNameAAD, g.DatabaseID))
	if err != nil {
		return nil, "", errs.Wrap(errs.CodeKeyNotValid, err, "database name")
	}
	dk, err := keys.DatabaseKeyFromBytes(raw)
	if err != nil {
		return nil, "", errs.Wrap(errs.CodeKeyNotValid, err, "database key")
	}
	return dk, string(name), nil
}

// VerifyGrant checks the grant signature against the sender's verifying
// key. Unsigned grants pass only when requireSigned is false.
func VerifyGrant(g domain.DatabaseGrant, recipientPub domain.X25519Public, requireSigned bool) error {
	if len(g.Signature) == 0 {
		if requireSigned {
			return errs.New(errs.CodeKeyNotValid, "grant is not signed")
		}
		return nil
	}
	if g.SenderVerifyingKey.IsZero() {
		return errs.New(errs.CodeKeyNotValid, "grant has no verifying key")
	}
	if !crypto.VerifyEd25519(g.SenderVerifyingKey, grantMessage(g, recipientPub), g.Signature) {
		return errs.New(errs.CodeKeyNotValid, "grant signature")
	}
	return nil
}

// GrantFingerprint identifies the sender of a grant.
func GrantFingerprint(g domain.DatabaseGrant) domain.Fingerprint {
	return crypto.Fingerprint(g.SenderPublicKey.Slice())
}

func aad(label string, id domain.DatabaseID) []byte {
	return []byte(label + "|" + string(id))
}

// grantMessage is the signed transcript: every field the recipient acts on.
func grantMessage(g domain.DatabaseGrant, recipientPub domain.X25519Public) []byte {
	var b bytes.Buffer
	b.WriteString(grantSigCtx)
	for _, f := range [][]byte{
		[]byte(g.DatabaseID), []byte(g.Sender), g.SenderPublicKey.Slice(),
		recipientPub.Slice(), g.WrappedKey, g.EncryptedName,
	} {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(f)))
		b.Write(n[:])
		b.Write(f)
	}
	if g.ReadOnly {
		b.WriteByte(1)
	} else {
		b.WriteByte(0)
	}
	return b.Bytes()
}
