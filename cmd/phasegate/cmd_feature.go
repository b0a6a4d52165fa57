package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"phasegate/internal/config"
	"phasegate/internal/logging"
	"phasegate/internal/types"
)

var featureTitle string

// createFeatureCmd registers a feature and one workspace per phase role.
var createFeatureCmd = &cobra.Command{
	Use:   "create-feature <id> <role,role,...>",
	Short: "Create a feature with an ordered phase sequence",
	Long: `Creates a feature and an isolated workspace for each role in the
phase sequence. Every phase starts in NotStarted; nothing moves until the
coordinator issues a request.

Example:
  phasegate create-feature tasks-001 spec,build --title "Task tracker"`,
	Args: cobra.ExactArgs(2),
	RunE: runCreateFeature,
}

// abandonCmd cancels a feature without erasing its history.
var abandonCmd = &cobra.Command{
	Use:   "abandon <feature>",
	Short: "Abandon a feature; its log stays readable",
	Args:  cobra.ExactArgs(1),
	RunE:  runAbandon,
}

// listCmd lists all features.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List features and their status",
	RunE:  runList,
}

// initCmd sets up the .phasegate directory in the current project.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize phasegate in the current directory",
	Long: `Creates the .phasegate/ directory with a default config.yaml and an
empty database. Run once per project; running again is a no-op for an
existing config.`,
	RunE: runInit,
}

func init() {
	createFeatureCmd.Flags().StringVar(&featureTitle, "title", "", "Human-readable feature title")

	rootCmd.AddCommand(createFeatureCmd)
	rootCmd.AddCommand(abandonCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(initCmd)
}

func runCreateFeature(cmd *cobra.Command, args []string) error {
	var roles []types.Role
	for _, part := range strings.Split(args[1], ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			roles = append(roles, types.Role(part))
		}
	}

	c, err := openCoordinator()
	if err != nil {
		return err
	}
	defer c.Close()

	f, err := c.CreateFeature(args[0], featureTitle, roles)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(f)
	}
	fmt.Printf("Created feature %s with phases %s\n", f.ID, joinRoles(f.PhaseSequence))
	return nil
}

func runAbandon(cmd *cobra.Command, args []string) error {
	c, err := openCoordinator()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Abandon(types.FeatureID(args[0])); err != nil {
		return err
	}
	fmt.Printf("Abandoned feature %s\n", args[0])
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	c, err := openCoordinator()
	if err != nil {
		return err
	}
	defer c.Close()

	features, err := c.Features()
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(features)
	}
	if len(features) == 0 {
		fmt.Println("No features yet. Start with: phasegate create-feature <id> <roles>")
		return nil
	}
	for _, f := range features {
		fmt.Printf("%-20s %-12s %s\n", f.ID, f.Status, joinRoles(f.PhaseSequence))
	}
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	log := logging.Get(logging.CategoryCLI)

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	path := config.DefaultPath(cwd)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Already initialized (%s)\n", path)
		return nil
	}

	fresh := config.DefaultConfig()
	if err := fresh.Save(path); err != nil {
		return err
	}
	log.Infow("Wrote default config", "path", path)

	// Opening the store creates the database and applies the schema.
	cfg = fresh
	c, err := openCoordinator()
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Printf("Initialized phasegate in %s\n", config.DefaultDir)
	fmt.Printf("  config:   %s\n", path)
	fmt.Printf("  database: %s\n", fresh.Storage.DatabasePath)
	return nil
}

func joinRoles(roles []types.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, " → ")
}
