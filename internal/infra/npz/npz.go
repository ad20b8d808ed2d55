package npz

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrKeyNotFound = errors.New("array not found in npz")

// Write stores arrays as a deflate-compressed npz archive, one <name>.npy entry each.
func Write(w io.Writer, arrays map[string]Array) error {
	names := make([]string, 0, len(arrays))
	for name := range arrays {
		names = append(names, name)
	}
	sort.Strings(names)

	zw := zip.NewWriter(w)
	for _, name := range names {
		entry, err := zw.CreateHeader(&zip.FileHeader{Name: name + ".npy", Method: zip.Deflate})
		if err != nil {
			return fmt.Errorf("create npz entry %s: %w", name, err)
		}
		if err := WriteNPY(entry, arrays[name]); err != nil {
			return fmt.Errorf("write npz entry %s: %w", name, err)
		}
	}
	return zw.Close()
}

// WriteFile writes the archive to a temp file next to path and renames it into place.
func WriteFile(path string, arrays map[string]Array) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".npz-*")
	if err != nil {
		return fmt.Errorf("create temp npz: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, arrays); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp npz: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// Read decodes every array of an npz archive held in memory.
func Read(data []byte) (map[string]Array, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open npz: %w", err)
	}

	out := make(map[string]Array, len(zr.File))
	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, ".npy") {
			continue
		}
		if f.UncompressedSize64 == 0 {
			return nil, fmt.Errorf("npz entry %s is empty", f.Name)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open npz entry %s: %w", f.Name, err)
		}
		arr, err := ReadNPY(rc, int64(min(f.UncompressedSize64, MaxDataBytes)))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("decode npz entry %s: %w", f.Name, err)
		}
		out[strings.TrimSuffix(f.Name, ".npy")] = arr
	}
	return out, nil
}

func ReadFile(path string) (map[string]Array, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Read(data)
}

// Lookup returns the first array present under any of keys.
func Lookup(arrays map[string]Array, keys ...string) (Array, error) {
	for _, k := range keys {
		if a, ok := arrays[k]; ok {
			return a, nil
		}
	}
	return Array{}, fmt.Errorf("%w: %s", ErrKeyNotFound, strings.Join(keys, ", "))
}
