// Package paths resolves where impel keeps its data.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// DataDirName is the per-project directory holding the database.
	DataDirName = ".impel"
	// DBFileName is the database file inside the data directory.
	DBFileName = "impel.db"
)

// ResolveDBPath turns user input into a database file path.
//
//   - "" -> "./.impel/impel.db"
//   - "/path/to/project" -> "/path/to/project/.impel/impel.db"
//   - "/path/to/project/.impel" -> "/path/to/project/.impel/impel.db"
//   - "/path/to/file.db" -> "/path/to/file.db"
//
// A data directory containing a redirect file is followed, so git worktrees
// can share the main checkout's database.
func ResolveDBPath(path string) string {
	if path == "" {
		path = "."
	}
	path = filepath.Clean(path)

	if ext := filepath.Ext(path); ext == ".db" || ext == ".sqlite" {
		return path
	}
	dataDir := path
	if filepath.Base(path) != DataDirName {
		dataDir = filepath.Join(path, DataDirName)
	}
	return filepath.Join(followRedirect(dataDir), DBFileName)
}

// followRedirect returns the directory named by dataDir/redirect, relative
// to dataDir, or dataDir itself when there is no redirect.
func followRedirect(dataDir string) string {
	content, err := os.ReadFile(filepath.Join(dataDir, "redirect")) //nolint:gosec // redirect lives inside the data dir
	if err != nil {
		return dataDir
	}
	target := strings.TrimSpace(string(content))
	if target == "" {
		return dataDir
	}
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Clean(filepath.Join(dataDir, target))
}
