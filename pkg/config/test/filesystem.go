// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

// Package test provides in-memory file systems for loader tests.
package test

import (
	"io"
	"io/fs"
)

// MockFS is an fs.FS whose Open behavior is set per test.
type MockFS struct {
	OpenFunc func(name string) (fs.File, error)
}

func (m *MockFS) Open(name string) (fs.File, error) {
	return m.OpenFunc(name)
}

// MockFile is an fs.File serving Content.
type MockFile struct {
	Content []byte
	// ReadErr is returned once Content is consumed instead of io.EOF.
	ReadErr error
	// CloseFunc overrides Close if set.
	CloseFunc func() error

	off int
}

func (mf *MockFile) Read(b []byte) (int, error) {
	if mf.off >= len(mf.Content) {
		if mf.ReadErr != nil {
			return 0, mf.ReadErr
		}
		return 0, io.EOF
	}
	n := copy(b, mf.Content[mf.off:])
	mf.off += n
	return n, nil
}

func (mf *MockFile) Close() error {
	if mf.CloseFunc != nil {
		return mf.CloseFunc()
	}
	return nil
}

func (mf *MockFile) Stat() (fs.FileInfo, error) {
	return nil, nil
}

// FileFS returns a file system that serves content for every name.
func FileFS(content string) *MockFS {
	return &MockFS{OpenFunc: func(string) (fs.File, error) {
		return &MockFile{Content: []byte(content)}, nil
	}}
}
