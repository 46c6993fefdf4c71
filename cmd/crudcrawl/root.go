package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for crudcrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crudcrawl",
		Short: "Dependency-aware CRUD crawler for web applications",
		Long: `crudcrawl explores a web application by following links and submitting
forms. Every discovered action is classified as a create, read, update or
delete on a resource, and a scheduler runs them in dependency order: parents
are created before children, and children are deleted before parents.

Without --oracle-url actions are classified offline from their URLs and
labels. With an OpenAI compatible endpoint a language model classifies
actions, verifies their outcome and infers parent/child resources.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
