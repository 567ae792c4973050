// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	appName   = "netops"
	envPrefix = "NETOPS"
)

// NewCmdRoot creates the netops root command. The startup configuration
// is read before any subcommand runs.
func NewCmdRoot(version string) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   appName,
		Short: "netops, the network diagnostics core",
		Long: "netops runs ping targets, MTR sessions and a packet capture side by side.\n" +
			"Their state is published as telemetry snapshots via an API.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			used, err := readConfig(cfgFile)
			if err != nil {
				return err
			}
			if used != "" {
				cmd.PrintErrln("Using config file:", used)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default is $HOME/.netops.yaml or /etc/netops/.netops.yaml)")
	return root
}

// BuildCmd assembles the command tree
func BuildCmd(version string) *cobra.Command {
	root := NewCmdRoot(version)
	root.AddCommand(NewCmdRun(version))
	return root
}

// Execute runs the command tree and exits non-zero on failure
func Execute(version string) {
	if err := BuildCmd(version).Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// readConfig sets up the environment binding and reads the config file.
// It returns the path of the file in use. A missing default file is not an error.
func readConfig(cfgFile string) (string, error) {
	viper.SetOptions(viper.ExperimentalBindStruct())
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigType("yaml")
		viper.SetConfigName("." + appName)
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(filepath.Join("/etc", appName))
	}

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		return viper.ConfigFileUsed(), nil
	case cfgFile == "" && errors.As(err, &notFound):
		return "", nil
	default:
		return "", fmt.Errorf("failed to read config: %w", err)
	}
}
