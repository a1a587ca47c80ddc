// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"os"
	"path/filepath"
)

const (
	// LinuxHosts is a typical Unix hosts file.
	LinuxHosts = "127.0.0.1 localhost\n" +
		"::1 localhost ip6-localhost ip6-loopback\n" +
		"\n" +
		"# The following lines are desirable for IPv6 capable hosts\n" +
		"ff02::1 ip6-allnodes\n"

	// WindowsHosts is a CRLF hosts file as shipped with Windows.
	WindowsHosts = "# Copyright (c) 1993-2009 Microsoft Corp.\r\n" +
		"#\r\n" +
		"# localhost name resolution is handled within DNS itself.\r\n" +
		"#\t127.0.0.1       localhost\r\n" +
		"#\t::1             localhost\r\n"
)

// FakeHostsFile is a hosts file in a temporary directory.
type FakeHostsFile struct {
	Path string
}

// NewFakeHostsFile creates dir/hosts with content and the given permissions.
func NewFakeHostsFile(dir, content string, perm os.FileMode) (*FakeHostsFile, error) {
	path := filepath.Join(dir, "hosts")
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return nil, err
	}
	// WriteFile is subject to umask
	if err := os.Chmod(path, perm); err != nil {
		return nil, err
	}
	return &FakeHostsFile{Path: path}, nil
}

// Content returns the current file content.
func (f *FakeHostsFile) Content() (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Mode returns the file permission bits.
func (f *FakeHostsFile) Mode() (os.FileMode, error) {
	info, err := os.Stat(f.Path)
	if err != nil {
		return 0, err
	}
	return info.Mode().Perm(), nil
}
