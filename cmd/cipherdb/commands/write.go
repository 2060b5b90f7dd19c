package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"cipherdb/internal/services/database"
)

// openDB signs in and opens db for writing.
func openDB(ctx context.Context, cmd *cobra.Command, db string) (*database.Service, error) {
	if err := connect(ctx, cmd); err != nil {
		return nil, err
	}
	dbs, err := appCtx.Databases()
	if err != nil {
		return nil, err
	}
	if err := dbs.Open(ctx, db, nil); err != nil {
		return nil, err
	}
	return dbs, nil
}

func payload(s string) (json.RawMessage, error) {
	if !json.Valid([]byte(s)) {
		return nil, fmt.Errorf("item is not valid JSON")
	}
	return json.RawMessage(s), nil
}

// insert <db> <json>: add an item. The id is generated unless --id is set.
func insertCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "insert <db> <json>",
		Short: "Insert an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := payload(args[1])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			dbs, err := openDB(ctx, cmd, args[0])
			if err != nil {
				return err
			}
			got, err := dbs.Insert(ctx, args[0], id, item)
			if err != nil {
				return err
			}
			fmt.Println(got)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "item id")
	return cmd
}

// update <db> <id> <json>: replace an item.
func updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <db> <id> <json>",
		Short: "Replace an item",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := payload(args[2])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			dbs, err := openDB(ctx, cmd, args[0])
			if err != nil {
				return err
			}
			if err := dbs.Update(ctx, args[0], args[1], item); err != nil {
				return err
			}
			fmt.Println("updated")
			return nil
		},
	}
}

// delete <db> <id>: remove an item.
func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <db> <id>",
		Short: "Delete an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dbs, err := openDB(ctx, cmd, args[0])
			if err != nil {
				return err
			}
			if err := dbs.Delete(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("deleted")
			return nil
		},
	}
}
