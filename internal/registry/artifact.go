package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/signdata/signdata-processing-service/internal/domain/entity"
	"github.com/signdata/signdata-processing-service/internal/infra/npz"
)

const sequenceKey = "sequence"

// legacy archives stored the array under "sequences"
var sequenceKeys = []string{sequenceKey, "sequences"}

func WriteSequence(path string, seq entity.Sequence) error {
	arr := npz.Array{Shape: []int{seq.Frames, seq.Dim}, Data: seq.Data}
	if err := npz.WriteFile(path, map[string]npz.Array{sequenceKey: arr}); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ReadArray returns the stored sequence array with whatever dimensionality it has.
func ReadArray(path string) (npz.Array, error) {
	arrays, err := npz.ReadFile(path)
	if err != nil {
		return npz.Array{}, err
	}
	return npz.Lookup(arrays, sequenceKeys...)
}

func ReadSequence(path string) (entity.Sequence, error) {
	arr, err := ReadArray(path)
	if err != nil {
		return entity.Sequence{}, err
	}
	return sequenceFromArray(arr)
}

func sequenceFromArray(arr npz.Array) (entity.Sequence, error) {
	if arr.NDim() != 2 {
		return entity.Sequence{}, fmt.Errorf("sequence must be 2-D, got shape %v", arr.Shape)
	}
	return entity.Sequence{Frames: arr.Shape[0], Dim: arr.Shape[1], Data: arr.Data}, nil
}

func SidecarPath(npzPath string) string {
	return strings.TrimSuffix(npzPath, filepath.Ext(npzPath)) + ".json"
}

func ReadSidecar(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return meta, nil
}

func WriteSidecar(path string, meta map[string]any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

func removeArtifacts(npzPath string) error {
	var errs []error
	for _, p := range []string{npzPath, SidecarPath(npzPath)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
