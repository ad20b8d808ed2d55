package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signdata/signdata-processing-service/internal/domain/entity"
	"github.com/signdata/signdata-processing-service/internal/registry"
	"github.com/signdata/signdata-processing-service/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func run(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--storage", root, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, root string, args ...string) string {
	t.Helper()
	out, err := run(t, root, args...)
	require.NoError(t, err, out)
	return out
}

func writeNPZ(t *testing.T, frames, dim int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seq.npz")
	seq := entity.NewSequence(frames, dim)
	for i := range seq.Data {
		seq.Data[i] = float32(i) * 0.01
	}
	require.NoError(t, registry.WriteSequence(path, seq))
	return path
}

func TestVersion(t *testing.T) {
	out := mustRun(t, t.TempDir(), "version")
	assert.Contains(t, out, "signdata dev")
}

func TestLabels(t *testing.T) {
	root := t.TempDir()

	out := mustRun(t, root, "labels", "create", "Xin chào", "--notes", "greeting")
	assert.Equal(t, "1\tclass_0001_xin-chao\n", out)

	out = mustRun(t, root, "labels", "create", "Cảm ơn")
	assert.Equal(t, "2\tclass_0002_cam-on\n", out)

	out = mustRun(t, root, "labels", "update", "1", "--label", "Chào")
	assert.Contains(t, out, "updated 1: Chào")

	var labels []entity.Label
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, root, "labels", "-o", "json")), &labels))
	require.Len(t, labels, 2)
	assert.Equal(t, "Chào", labels[0].LabelOriginal)
	assert.Equal(t, "xin-chao", labels[0].Slug)
	assert.Equal(t, "greeting", labels[0].Notes)
	assert.Equal(t, "v1", labels[1].DatasetVersion)

	var fromYAML []entity.Label
	require.NoError(t, yaml.Unmarshal([]byte(mustRun(t, root, "labels", "-o", "yaml")), &fromYAML))
	assert.Equal(t, labels, fromYAML)

	table := mustRun(t, root, "labels")
	assert.Contains(t, table, "class_0002_cam-on")

	_, err := run(t, root, "labels", "-o", "xml")
	assert.Error(t, err)

	mustRun(t, root, "labels", "delete", "2")
	_, err = run(t, root, "labels", "delete", "2")
	assert.ErrorIs(t, err, registry.ErrLabelNotFound)

	_, err = run(t, root, "labels", "delete", "zero")
	assert.Error(t, err)
}

func TestSamplesImportListSessionsMerge(t *testing.T) {
	root := t.TempDir()
	mustRun(t, root, "labels", "create", "a")
	mustRun(t, root, "labels", "create", "b")
	npzPath := writeNPZ(t, 4, 3)

	out := mustRun(t, root, "samples", "import", "1", npzPath, "--user", "u1", "--session", "s1", "--frames", "4")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), ".npz"))
	mustRun(t, root, "samples", "import", "2", npzPath, "--user", "u1", "--session", "s1")

	_, err := run(t, root, "labels", "delete", "1")
	assert.ErrorIs(t, err, registry.ErrLabelInUse)

	var samples []entity.Sample
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, root, "samples", "--class", "1", "-o", "json")), &samples))
	require.Len(t, samples, 1)
	assert.Equal(t, "4", samples[0].Frames)
	assert.Equal(t, entity.SourceVideo, samples[0].Source)

	var sessions []entity.Session
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, root, "samples", "sessions", "-o", "json")), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, []string{"a", "b"}, sessions[0].Labels)
	assert.Equal(t, 2, sessions[0].SamplesCount)

	mustRun(t, root, "labels", "merge", "1", "2")
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, root, "samples", "--class", "2", "-o", "json")), &samples))
	assert.Len(t, samples, 2)

	mustRun(t, root, "samples", "delete", samples[0].SampleID)
	_, err = run(t, root, "samples", "delete", samples[0].SampleID)
	assert.ErrorIs(t, err, registry.ErrSampleNotFound)
}

func TestValidate_FreshDataset(t *testing.T) {
	var report validator.Report
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, t.TempDir(), "validate", "-q", "-o", "json")), &report))
	assert.False(t, report.OK)
	assert.Equal(t, validator.ReasonNoSamples, report.Reason)
}

func TestValidate(t *testing.T) {
	root := t.TempDir()
	mustRun(t, root, "labels", "create", "a")
	short := writeNPZ(t, 3, 4)
	mustRun(t, root, "samples", "import", "1", short)
	mustRun(t, root, "samples", "import", "1", short)
	mustRun(t, root, "samples", "import", "1", writeNPZ(t, 5, 4))

	_, err := run(t, root, "validate", "-q", "--strict")
	assert.ErrorIs(t, err, errValidationFailed)

	var report validator.Report
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, root, "validate", "-q", "--fix", "-o", "json")), &report))
	assert.Equal(t, 3, report.TotalSamples)
	assert.Equal(t, 1, report.MismatchCount)
	assert.Equal(t, 1, report.FixedCount)

	out := mustRun(t, root, "validate", "-q", "--strict")
	assert.Contains(t, out, "mismatches")
}

func TestExportLocal(t *testing.T) {
	root := t.TempDir()
	mustRun(t, root, "labels", "create", "a")
	mustRun(t, root, "samples", "import", "1", writeNPZ(t, 2, 2))

	dest := filepath.Join(t.TempDir(), "dataset.zip")
	out := mustRun(t, root, "export", "--local", dest)
	assert.Contains(t, out, dest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("PK"), data[:2])
}

func TestProcessRequiresLabel(t *testing.T) {
	video := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(video, []byte("x"), 0o644))

	_, err := run(t, t.TempDir(), "process", video)
	assert.ErrorContains(t, err, "--label is required")

	_, err = run(t, t.TempDir(), "process", "missing.mp4", "-l", "a")
	assert.Error(t, err)
}
