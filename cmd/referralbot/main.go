// Command referralbot runs the Telegram channel-broadcast and referral-link
// bot, and offers a few maintenance subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "referralbot",
		Short:         "Telegram channel broadcast and referral-link bot",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			return loadEnv(envFile)
		},
	}
	root.PersistentFlags().String("env-file", ".env", "optional dotenv file loaded before reading the environment")

	root.AddCommand(newServeCmd(), newOwnerCmd())
	return root
}

// loadEnv reads path into the environment without overriding variables that
// are already set. A missing file is not an error.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "referralbot:", err)
		os.Exit(1)
	}
}
