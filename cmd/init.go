package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zorak1103/whatsrunning/internal/templates"
)

var (
	force bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a sample configuration",
	Long: `Init writes sample configuration files to the current directory.

This command will create:
  - config.yaml (sample configuration file)
  - .env (environment variable template)

Existing files are kept unless --force is given.`,
	Example: `  # Initialize in current directory
  whatsrunning init

  # Force overwrite existing files
  whatsrunning init --force`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()

		files := []struct {
			name    string
			content []byte
		}{
			{"config.yaml", templates.ConfigYAML},
			{".env", templates.EnvFile},
		}

		for _, f := range files {
			if _, err := os.Stat(f.name); err == nil && !force {
				fmt.Fprintf(out, "Skipping %s (already exists, use --force to overwrite)\n", f.name)
				continue
			}

			if err := os.WriteFile(f.name, f.content, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", f.name, err)
			}

			fmt.Fprintf(out, "Created %s\n", f.name)
		}

		fmt.Fprintln(out, "\nNext steps:")
		fmt.Fprintln(out, "   1. Edit config.yaml, at least engine.hostname")
		fmt.Fprintln(out, "   2. Run 'whatsrunning snapshot' to test your setup")
		fmt.Fprintln(out, "   3. Run 'whatsrunning serve' to start the dashboard")

		return nil
	},
}

// nolint:gochecknoinits // Standard Cobra pattern for command registration
func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&force, "force", false, "overwrite existing configuration files")
}
