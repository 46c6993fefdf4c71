package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/crudcrawl/internal/config"
)

//go:embed templates/crudcrawl.yaml
var configTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a crudcrawl profile file",
		Long: `Init writes a .crudcrawl profile to the current directory.

The profile holds per-site settings: login cookies and headers, strings
that mark actions which must never run (such as logout), URL patterns to
ignore or follow, and a short description of the application for the
oracle.

Examples:
  # Create .crudcrawl in the current directory
  crudcrawl init

  # Create the profile at a specific path
  crudcrawl init -o profiles/blog.yaml

  # Overwrite an existing file
  crudcrawl init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the profile")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite an existing profile")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("profile already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/crudcrawl.yaml")
	if err != nil {
		return fmt.Errorf("failed to read profile template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Profiles hold session cookies.
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created profile: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure per-site settings such as:")
	fmt.Fprintln(out, "  - Login cookies and headers")
	fmt.Fprintln(out, "  - Actions that must never run (blockingStrings)")
	fmt.Fprintln(out, "  - URL patterns to ignore or follow")
	return nil
}
