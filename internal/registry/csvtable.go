package registry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var (
	labelColumns  = []string{"class_idx", "label_original", "slug", "folder_name", "created_at", "dataset_version", "notes"}
	sampleColumns = []string{"sample_id", "class_idx", "folder_name", "file", "user", "session_id", "frames", "duration", "source", "dialect", "created_at"}
)

type row map[string]string

// readTable returns the rows of a CSV file keyed by header. A missing file is an empty table.
func readTable(path string) ([]row, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", filepath.Base(path), err)
	}

	var rows []row
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		rw := make(row, len(header))
		for i, col := range header {
			if i < len(rec) {
				rw[col] = rec[i]
			}
		}
		rows = append(rows, rw)
	}
	return rows, nil
}

// writeTable rewrites the whole table through a temp file and rename, always with the given header.
func writeTable(path string, columns []string, rows []row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create table dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp table: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(columns); err != nil {
		tmp.Close()
		return fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, len(columns))
	for _, rw := range rows {
		for i, col := range columns {
			rec[i] = rw[col]
		}
		if err := w.Write(rec); err != nil {
			tmp.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp table: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
