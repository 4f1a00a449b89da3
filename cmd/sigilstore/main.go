// Copyright (c) 2025 ToeiRei
// Sigilstore - auth-state persistence for end-to-end encrypted messaging
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the command-line interface for Sigilstore using the Cobra
// library. The CLI is an operator tool for inspecting and maintaining the
// auth-state table of a messaging session; the protocol layer itself embeds
// the library packages directly.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/toeirei/sigilstore/internal/authstate"
	"github.com/toeirei/sigilstore/internal/config"
	"github.com/toeirei/sigilstore/internal/i18n"
	"github.com/toeirei/sigilstore/internal/logging"
)

// version is set by the linker, e.g.
// go build -ldflags "-X main.version=1.2.3"
var version = "dev"

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// The error is already printed by Cobra on failure.
		os.Exit(1)
	}
}

// newRootCmd creates and configures the root cobra command. Tests create
// fresh instances for isolation.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sigilstore",
		Short: "Sigilstore maintains the persisted auth state of an E2EE messaging session.",
		Long: `Sigilstore persists the authentication state of an end-to-end
encrypted messaging session (the long-lived credential bundle plus derived
key material) into a relational table. This CLI inspects and maintains that
table; the messaging client embeds the library directly.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			lang, _ := cmd.Flags().GetString("lang")
			i18n.Init(lang)
			debug, _ := cmd.Flags().GetBool("debug")
			logging.SetDebug(debug)
		},
	}

	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newRemoveCredsCmd())
	cmd.AddCommand(newDropCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newQueryCmd())

	cmd.Version = version

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is sigilstore.yaml in the user or system config dir)")
	cmd.PersistentFlags().String("engine", "mysql", `Database engine ("mysql", "postgres", "sqlite")`)
	cmd.PersistentFlags().String("host", "localhost", "Database host")
	cmd.PersistentFlags().Int("port", config.DefaultMySQLPort, "Database port")
	cmd.PersistentFlags().String("user", "", "Database user")
	cmd.PersistentFlags().String("password", "", "Database password")
	cmd.PersistentFlags().String("database", "", "Database name (file path for sqlite)")
	cmd.PersistentFlags().String("table", config.DefaultTable, "Auth-state table for this session")
	cmd.PersistentFlags().String("lang", "en", `CLI language ("en", "de")`)
	cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	return cmd
}

// openState loads the configuration and opens the auth state for a command.
func openState(cmd *cobra.Command) (*authstate.State, config.Config, error) {
	cfg, err := config.Load(cmd, cfgFile)
	if err != nil {
		return nil, cfg, fmt.Errorf("%s", i18n.T("cli.error_load_config", err))
	}
	state, err := authstate.Open(context.Background(), cfg)
	if err != nil {
		return nil, cfg, fmt.Errorf("%s", i18n.T("cli.error_open_store", err))
	}
	return state, cfg, nil
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show a summary of the stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, cfg, err := openState(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = state.Close() }()

			fmt.Println(i18n.T("cli.creds_header", cfg.Table))
			fmt.Println(i18n.T("cli.creds_registered", state.Creds.Registered))
			fmt.Println(i18n.T("cli.creds_registration_id", state.Creds.RegistrationID))
			fmt.Println(i18n.T("cli.creds_device_id", state.Creds.DeviceID))
			fmt.Println(i18n.T("cli.creds_next_pre_key_id", state.Creds.NextPreKeyID))
			return nil
		},
	}
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Ensure the table exists and persist the credential bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, _, err := openState(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = state.Close() }()

			if err := state.SaveCreds(context.Background()); err != nil {
				return err
			}
			fmt.Println(i18n.T("cli.saved_creds"))
			return nil
		},
	}
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all key records, keeping the credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, _, err := openState(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = state.Close() }()

			if err := state.Clear(context.Background()); err != nil {
				return err
			}
			fmt.Println(i18n.T("cli.cleared_keys"))
			return nil
		},
	}
}

func newRemoveCredsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-creds",
		Short: "Remove all records including the credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, _, err := openState(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = state.Close() }()

			if err := state.RemoveCreds(context.Background()); err != nil {
				return err
			}
			fmt.Println(i18n.T("cli.removed_all"))
			return nil
		},
	}
}

func newDropCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drop",
		Short: "Drop the backing table entirely",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, cfg, err := openState(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = state.Close() }()

			if err := state.DropTable(context.Background()); err != nil {
				return err
			}
			fmt.Println(i18n.T("cli.dropped_table", cfg.Table))
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Export all records to a compressed backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, _, err := openState(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = state.Close() }()

			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			if err := state.Export(context.Background(), f); err != nil {
				return err
			}
			fmt.Println(i18n.T("cli.exported", args[0]))
			return nil
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import records from a compressed backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, _, err := openState(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = state.Close() }()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			if err := state.Import(context.Background(), f); err != nil {
				return err
			}
			fmt.Println(i18n.T("cli.imported", args[0]))
			return nil
		},
	}
}

func newQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <sql> [args...]",
		Short: "Run a raw statement through the retrying executor",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, _, err := openState(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = state.Close() }()

			params := make([]any, 0, len(args)-1)
			for _, a := range args[1:] {
				params = append(params, a)
			}
			rows, err := state.Query(context.Background(), args[0], params...)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Println(i18n.T("cli.query_no_rows"))
				return nil
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		},
	}
}
