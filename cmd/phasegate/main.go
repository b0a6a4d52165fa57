package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"phasegate/internal/config"
	"phasegate/internal/coordinator"
	"phasegate/internal/logging"
	"phasegate/internal/types"
)

var (
	// Global flags
	cfgPath    string
	dbPath     string
	actingRole string
	jsonOut    bool
	verbose    bool

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "phasegate",
	Short: "phasegate - phase-gated multi-role workflow engine",
	Long: `phasegate coordinates features through a fixed sequence of role phases.

Roles communicate only through documents: the coordinator issues requests,
roles submit immutable numbered iterations, and the review gate records
verdicts that move each phase through its state machine. Handoffs grant a
downstream role read access to an upstream interface before the upstream
phase is approved, so work can proceed in parallel without shared state.

All state lives in an append-only SQLite log; status is derived by replay.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgPath
		if path == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			path = config.DefaultPath(cwd)
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Storage.DatabasePath = dbPath
		}
		return logging.Init(cfg.Logging, verbose)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default: .phasegate/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&actingRole, "role", string(types.RoleCoordinator), "Acting role for access-checked commands")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of formatted output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps error classes onto distinct codes so shell callers can
// branch without parsing messages.
func exitCode(err error) int {
	var (
		conflict   *types.ConflictError
		exists     *types.AlreadyExistsError
		notFound   *types.NotFoundError
		denied     *types.AccessDeniedError
		transition *types.InvalidTransitionError
		grant      *types.InvalidGrantError
		stale      *types.StaleIterationError
		abandoned  *types.FeatureAbandonedError
	)
	switch {
	case errors.As(err, &conflict), errors.As(err, &exists):
		return 2
	case errors.As(err, &notFound):
		return 3
	case errors.As(err, &denied):
		return 4
	case errors.As(err, &transition), errors.As(err, &grant):
		return 5
	case errors.As(err, &stale):
		return 6
	case errors.As(err, &abandoned):
		return 7
	}
	return 1
}

// openCoordinator opens the engine against the configured database.
// Callers must Close it.
func openCoordinator() (*coordinator.Coordinator, error) {
	return coordinator.Open(cfg)
}

// actor returns the acting role from --role.
func actor() types.Role {
	return types.Role(strings.TrimSpace(actingRole))
}

// resolvePayload reads a document payload from the positional argument,
// from --file, or from stdin when either is "-".
func resolvePayload(arg, file string) (string, error) {
	if file != "" {
		if file == "-" {
			return readStdin()
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read payload file: %w", err)
		}
		return string(data), nil
	}
	if arg == "-" {
		return readStdin()
	}
	return arg, nil
}

func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
