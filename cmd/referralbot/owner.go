package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-referral-bot/internal/repo"
	"github.com/tbourn/go-referral-bot/internal/sysutil"
)

const defaultDBPath = "referralbot.db"

var openStore = repo.OpenSQLite

// newOwnerCmd manages the bot owner directly in the store, for bootstrapping
// without the /setowner claim secret.
func newOwnerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "owner",
		Short: "Show or set the bot owner",
	}
	cmd.PersistentFlags().String("db", "", "SQLite path (default $DB_PATH or "+defaultDBPath+")")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the stored owner's Telegram user id",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				db, closeDB, err := ownerStore(cmd)
				if err != nil {
					return err
				}
				defer closeDB()
				return showOwner(cmd, db, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "set <user_id>",
			Short: "Store a Telegram user id as the owner, replacing any previous one",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid user id %q", args[0])
				}
				db, closeDB, err := ownerStore(cmd)
				if err != nil {
					return err
				}
				defer closeDB()
				if _, err := repo.UpsertOwner(cmd.Context(), db, strconv.FormatInt(id, 10)); err != nil {
					return fmt.Errorf("set owner: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "owner set to %d\n", id)
				return nil
			},
		},
	)
	return cmd
}

// ownerStore opens and migrates the store. The returned func closes the
// underlying connection pool.
func ownerStore(cmd *cobra.Command) (*gorm.DB, func(), error) {
	flagPath, _ := cmd.Flags().GetString("db")
	path := sysutil.FirstNonEmpty(flagPath, os.Getenv("DB_PATH"), defaultDBPath)
	db, err := openStore(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open store %s: %w", path, err)
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("migrate store: %w", err)
	}
	return db, closeDB, nil
}

func showOwner(cmd *cobra.Command, db *gorm.DB, out io.Writer) error {
	o, err := repo.GetOwner(cmd.Context(), db)
	if errors.Is(err, repo.ErrNotFound) {
		fmt.Fprintln(out, "no owner set")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get owner: %w", err)
	}
	fmt.Fprintf(out, "%s (since %s)\n", o.UserID, o.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"))
	return nil
}
