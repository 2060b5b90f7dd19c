package domain

import (
	interfaces "cipherdb/internal/domain/interfaces"
	types "cipherdb/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Username       = types.Username
	Fingerprint    = types.Fingerprint
	DatabaseID     = types.DatabaseID
	NameHash       = types.NameHash
	ItemKey        = types.ItemKey
	Command        = types.Command
	Transaction    = types.Transaction
	Operation      = types.Operation
	ItemRecord     = types.ItemRecord
	Item           = types.Item
	StoredItem     = types.StoredItem
	Snapshot       = types.Snapshot
	User           = types.User
	RememberMe     = types.RememberMe
	SessionRecord  = types.SessionRecord
	SeedRequest    = types.SeedRequest
	DatabaseGrant  = types.DatabaseGrant
	GrantPrompt    = types.GrantPrompt
	WriteOp        = types.WriteOp
	SignInParams   = types.SignInParams
	UserUpdate     = types.UserUpdate
	X25519Public   = types.X25519Public
	X25519Private  = types.X25519Private
	Ed25519Public  = types.Ed25519Public
	Ed25519Private = types.Ed25519Private
)

// Commands carried by log entries.
const (
	CommandInsert   = types.CommandInsert
	CommandUpdate   = types.CommandUpdate
	CommandDelete   = types.CommandDelete
	CommandBatch    = types.CommandBatch
	CommandRollback = types.CommandRollback
)

// Persistence modes.
const (
	RememberLocal   = types.RememberLocal
	RememberSession = types.RememberSession
	RememberNone    = types.RememberNone
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	LocalStore      = interfaces.LocalStore
	Confirmer       = interfaces.Confirmer
	DatabaseService = interfaces.DatabaseService
	SessionService  = interfaces.SessionService
)
