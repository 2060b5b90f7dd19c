package database

import (
	"encoding/json"
	"unicode/utf8"

	"cipherdb/internal/domain"
	"cipherdb/internal/errs"
)

// Input limits. Violations are rejected before anything is sent.
const (
	MaxNameLength   = 100
	MaxItemIDLength = 100
	MaxItemSize     = 10 * 1024
	MaxOperations   = 10
)

func validateName(name string) error {
	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		return errs.ErrDatabaseNameMissing
	case n > MaxNameLength:
		return &errs.Error{Code: errs.CodeDatabaseNameTooLong, Limit: MaxNameLength}
	}
	return nil
}

func validateOp(op domain.WriteOp) error {
	switch n := utf8.RuneCountInString(op.ItemID); {
	case n == 0:
		return errs.ErrItemIDMissing
	case n > MaxItemIDLength:
		return &errs.Error{Code: errs.CodeItemIDTooLong, Limit: MaxItemIDLength}
	}
	switch op.Command {
	case domain.CommandInsert, domain.CommandUpdate:
		if len(op.Item) == 0 {
			return errs.ErrItemMissing
		}
		if len(op.Item) > MaxItemSize {
			return &errs.Error{Code: errs.CodeItemTooLarge, Limit: MaxItemSize}
		}
		if !json.Valid(op.Item) {
			return errs.New(errs.CodeItemInvalid, "item is not valid JSON")
		}
	case domain.CommandDelete:
	default:
		return errs.Newf(errs.CodeCommandNotRecognized, "%q", op.Command)
	}
	return nil
}

func validateBatch(ops []domain.WriteOp) error {
	switch {
	case len(ops) == 0:
		return errs.ErrOperationsMissing
	case len(ops) > MaxOperations:
		return &errs.Error{Code: errs.CodeOperationsExceedLimit, Limit: MaxOperations}
	}
	seen := make(map[string]struct{}, len(ops))
	for _, op := range ops {
		if err := validateOp(op); err != nil {
			return err
		}
		if _, dup := seen[op.ItemID]; dup {
			return errs.Newf(errs.CodeOperationsConflict, "item %q appears twice", op.ItemID)
		}
		seen[op.ItemID] = struct{}{}
	}
	return nil
}
