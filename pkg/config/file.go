// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/telekom/netops/internal/logger"
	"gopkg.in/yaml.v3"
)

var _ Loader = (*FileLoader)(nil)

// FileLoader reads the profile from a local yaml file.
type FileLoader struct {
	poller
	path string
	fsys fs.FS
}

func NewFileLoader(cfg *Config, cProfile chan<- Profile) *FileLoader {
	f := &FileLoader{
		path: cfg.Loader.File.Path,
		fsys: os.DirFS(filepath.Dir(cfg.Loader.File.Path)),
	}
	f.poller = newPoller("file", cfg.Loader.Interval, f.getProfile, cProfile)
	return f
}

// Run delivers the profile of the file. The file is read again on every
// loader interval.
func (f *FileLoader) Run(ctx context.Context) error {
	return f.run(ctx)
}

// getProfile reads the profile from the specified file.
func (f *FileLoader) getProfile(ctx context.Context) (profile Profile, err error) {
	log := logger.FromContext(ctx).With("path", f.path)

	file, err := f.fsys.Open(filepath.Base(f.path))
	if err != nil {
		log.ErrorContext(ctx, "Failed to open profile file", "error", err)
		return profile, fmt.Errorf("failed to open profile file: %w", err)
	}
	defer func() {
		cerr := file.Close()
		if cerr != nil {
			log.ErrorContext(ctx, "Failed to close profile file", "error", cerr)
		}
		err = errors.Join(cerr, err)
	}()

	b, err := io.ReadAll(file)
	if err != nil {
		log.ErrorContext(ctx, "Failed to read profile file", "error", err)
		return profile, fmt.Errorf("failed to read profile file: %w", err)
	}

	if err := yaml.Unmarshal(b, &profile); err != nil {
		log.ErrorContext(ctx, "Failed to parse profile file", "error", err)
		return profile, fmt.Errorf("failed to parse profile file: %w", err)
	}

	return profile, nil
}

// Shutdown stops the loader.
func (f *FileLoader) Shutdown(ctx context.Context) {
	logger.FromContext(ctx).DebugContext(ctx, "Sending signal to shut down file loader")
	f.shutdown()
}
