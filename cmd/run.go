// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/telekom/netops/internal/logger"
	"github.com/telekom/netops/pkg/config"
	"github.com/telekom/netops/pkg/netops"
)

// NewCmdRun creates a new run command
func NewCmdRun(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run netops",
		Long: "Run netops until it receives SIGINT or SIGTERM.\n" +
			"Sessions are started through the api or a runtime profile loaded by the configured loader.",
		RunE: run(version),
	}

	d := config.Default()
	fs := cmd.PersistentFlags()
	fs.String("name", "", "DNS name identifying this instance in metrics and traces")

	fs.Duration("probe.interval", d.Probe.Interval, "default time between two echo requests of a ping target")
	fs.Int("probe.payloadSize", d.Probe.Payload(), "default number of data bytes per echo request")
	fs.Int("probe.timeoutMultiplier", d.Probe.TimeoutMultiplier, "probes are lost after this many intervals")
	fs.Int("probe.window", d.Probe.Window, "number of samples the ping statistics are computed over")

	fs.Int("mtr.maxTTL", d.MTR.MaxTTL, "default highest TTL probed per MTR round")
	fs.Duration("mtr.roundInterval", d.MTR.RoundInterval, "default time between the starts of two MTR rounds")
	fs.Duration("mtr.probeGap", d.MTR.ProbeGap, "pause between two probes of an MTR round")
	fs.Int("mtr.timeoutMultiplier", d.MTR.TimeoutMultiplier, "MTR probes are lost after this many round intervals")
	fs.Int("mtr.window", d.MTR.Window, "number of samples kept per hop")

	fs.Int("capture.capacity", d.Capture.Capacity, "number of packets kept in the capture buffer")
	fs.Int("capture.snapLen", d.Capture.SnapLen, "captured frames are truncated to this many bytes")
	fs.Int("capture.queue", d.Capture.Queue, "number of frames buffered between capture reader and decoder")
	fs.Bool("capture.promiscuous", d.Capture.Promiscuous, "enable promiscuous mode on the capture interface")

	fs.Duration("telemetry.publishInterval", d.Telemetry.PublishInterval, "time between two telemetry snapshots")
	fs.String("telemetry.tracing.exporter", "", "span exporter: stdout, grpc or http. Empty disables the export")
	fs.String("telemetry.tracing.url", "", "collector endpoint of the otlp exporters")
	fs.String("telemetry.tracing.token", "", "bearer token sent to the collector")
	fs.Float64("telemetry.tracing.sampleRatio", 0, "fraction of root spans recorded. 0 records all")
	fs.Bool("telemetry.tracing.tls.enabled", false, "use tls towards the collector")
	fs.String("telemetry.tracing.tls.certPath", "", "ca certificate of the collector")

	fs.String("api.address", d.Api.ListeningAddress, "listening address of the api. Empty disables the api")

	fs.Bool("resolver.enabled", false, "resolve the names of hop addresses")
	fs.String("resolver.server", "", "DNS server as host:port. Empty uses /etc/resolv.conf")
	fs.Duration("resolver.timeout", 0, "timeout of a single reverse lookup")

	fs.String("loader.type", "", "profile loader: http or file. Empty disables the loader")
	fs.Duration("loader.interval", 0, "time between two profile loads. 0 loads once")
	fs.String("loader.http.url", "", "url of the remote profile")
	fs.String("loader.http.token", "", "bearer token of the remote profile")
	fs.Duration("loader.http.timeout", 0, "http client timeout of the profile loader")
	fs.Int("loader.http.retry.count", 0, "retries of a failed remote profile load")
	fs.Duration("loader.http.retry.delay", 0, "initial delay between two retries")
	fs.String("loader.file.path", "", "path of the local profile file")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = viper.BindPFlag(f.Name, f)
	})

	return cmd
}

// run is the entry point to start netops
func run(version string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		log := logger.NewLogger()
		ctx = logger.IntoContext(ctx, log)

		cfg := config.Default()
		if err := viper.Unmarshal(cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		if err := cfg.Validate(ctx); err != nil {
			return fmt.Errorf("error while validating the config: %w", err)
		}

		core, err := netops.New(cfg, version)
		if err != nil {
			return fmt.Errorf("failed to create netops: %w", err)
		}

		log.InfoContext(ctx, "Running netops", "version", version, "api", cfg.Api.ListeningAddress)
		return core.Run(ctx)
	}
}
