// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telekom/netops/pkg/config"
)

func TestNewCmdRun_Flags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want func(c *config.Config)
	}{
		{
			name: "defaults",
			want: func(*config.Config) {},
		},
		{
			name: "overrides",
			args: []string{
				"--name", "edge-1",
				"--probe.interval", "2s",
				"--mtr.maxTTL", "16",
				"--capture.capacity", "50",
				"--api.address", "",
				"--loader.type", "file",
				"--loader.file.path", "/etc/netops/profile.yaml",
				"--telemetry.tracing.exporter", "stdout",
			},
			want: func(c *config.Config) {
				c.Name = "edge-1"
				c.Probe.Interval = 2 * time.Second
				c.MTR.MaxTTL = 16
				c.Capture.Capacity = 50
				c.Api.ListeningAddress = ""
				c.Loader.Type = "file"
				c.Loader.File.Path = "/etc/netops/profile.yaml"
				c.Telemetry.Tracing.Exporter = "stdout"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)

			cmd := NewCmdRun("test")
			require.NoError(t, cmd.PersistentFlags().Parse(tt.args))

			got := config.Default()
			require.NoError(t, viper.Unmarshal(got))

			want := config.Default()
			tt.want(want)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildCmd(t *testing.T) {
	root := BuildCmd("v1.2.3")
	assert.Equal(t, "netops", root.Name())
	assert.Equal(t, "v1.2.3", root.Version)

	run, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	assert.Equal(t, "run", run.Name())
	assert.NotNil(t, run.PersistentFlags().Lookup("telemetry.publishInterval"))
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}
