// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package main

//go:generate go run gen-docs.go cli --path ../../docs
//go:generate go run gen-docs.go config --path ../../docs/netops.yaml

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
	netopscmd "github.com/telekom/netops/cmd"
	"github.com/telekom/netops/pkg/config"
	"gopkg.in/yaml.v3"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gen-docs",
		Short: "Generates docs for netops",
	}
	rootCmd.AddCommand(newCmdCLI(), newCmdConfig())

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newCmdCLI creates the command generating the flag reference
func newCmdCLI() *cobra.Command {
	var docPath string

	cmd := &cobra.Command{
		Use:   "cli",
		Short: "Generate markdown documentation",
		Long:  `Generate the markdown documentation of available CLI flags`,
		RunE: func(_ *cobra.Command, _ []string) error {
			c := netopscmd.BuildCmd("")
			c.DisableAutoGenTag = true
			if err := os.MkdirAll(docPath, 0o750); err != nil {
				return fmt.Errorf("failed to create docs directory: %w", err)
			}
			if err := doc.GenMarkdownTree(c, docPath); err != nil {
				return fmt.Errorf("failed to generate docs: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&docPath, "path", "docs", "directory path where the markdown files will be created")
	return cmd
}

// newCmdConfig creates the command writing an example startup configuration
// holding all defaults
func newCmdConfig() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate an example configuration",
		RunE: func(_ *cobra.Command, _ []string) error {
			b, err := yaml.Marshal(config.Default())
			if err != nil {
				return fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
				return fmt.Errorf("failed to create docs directory: %w", err)
			}
			if err = os.WriteFile(path, b, 0o600); err != nil {
				return fmt.Errorf("failed to write example config: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "docs/netops.yaml", "file the example configuration is written to")
	return cmd
}
