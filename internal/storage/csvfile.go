// Package storage provides CSV-backed persistence for the catalog and order stores.
//
// Both stores keep their full state in memory and rewrite their backing file in
// full on every flush. There is no journaling: the unit of durability is one
// complete file, written to a temporary file and renamed into place so readers
// never observe a partially written state.
package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Sentinel errors for CSV file operations.
var (
	// ErrInvalidHeader is returned when a file's header row does not match the expected columns.
	ErrInvalidHeader = errors.New("invalid csv header")

	// ErrRowFieldCount is returned when a data row has the wrong number of fields.
	ErrRowFieldCount = errors.New("invalid csv row field count")
)

// EnsureFile creates path with only a header row when the file does not exist,
// creating parent directories as needed. An existing file is left untouched.
func EnsureFile(path string, header []string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	return WriteRows(path, header, nil)
}

// ReadRows reads every data row from path, validating the header first.
// Each returned row has exactly len(header) fields.
func ReadRows(path string, header []string) ([][]string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from service configuration
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	defer func() {
		_ = f.Close()
	}()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = len(header)

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRowFieldCount, path, err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s: file has no header row", ErrInvalidHeader, path)
	}

	if !equalFields(records[0], header) {
		return nil, fmt.Errorf("%w: %s: got %v, want %v", ErrInvalidHeader, path, records[0], header)
	}

	return records[1:], nil
}

// WriteRows atomically rewrites path with the header followed by rows.
// The file is written to a temporary sibling and renamed into place, and is
// fsynced before the rename so a crash never leaves a truncated file behind.
func WriteRows(path string, header []string, rows [][]string) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}

	tmpName := tmp.Name()

	// Clean up the temp file on any failure path below.
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	writer := csv.NewWriter(tmp)

	if err := writer.Write(header); err != nil {
		cleanup()

		return fmt.Errorf("write header to %s: %w", tmpName, err)
	}

	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			cleanup()

			return fmt.Errorf("write row to %s: %w", tmpName, err)
		}
	}

	writer.Flush()

	if err := writer.Error(); err != nil {
		cleanup()

		return fmt.Errorf("flush %s: %w", tmpName, err)
	}

	if err := tmp.Sync(); err != nil {
		cleanup()

		return fmt.Errorf("sync %s: %w", tmpName, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("close %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("rename %s to %s: %w", tmpName, path, err)
	}

	return nil
}

func equalFields(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
