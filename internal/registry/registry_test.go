package registry

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/signdata/signdata-processing-service/internal/domain/entity"
	"github.com/signdata/signdata-processing-service/internal/infra/npz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	var mu sync.Mutex
	n := 0
	ids := func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%08x", n)
	}
	clock := func() time.Time { return time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC) }
	return New(t.TempDir(), zap.NewNop(), WithClock(clock), WithIDGenerator(ids))
}

func testSequence(frames, dim int) entity.Sequence {
	seq := entity.NewSequence(frames, dim)
	for i := range seq.Data {
		seq.Data[i] = float32(i)*0.001 - 0.5
	}
	return seq
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestRegisterLabel_Idempotent(t *testing.T) {
	reg := newTestRegistry(t)

	idx, folder, err := reg.RegisterLabel("Xin chào", "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "class_0001_xin-chao", folder)
	assert.DirExists(t, filepath.Join(reg.FeatureRoot(), folder))

	idx2, folder2, err := reg.RegisterLabel("Xin chào", "ignored", "v9")
	require.NoError(t, err)
	assert.Equal(t, idx, idx2)
	assert.Equal(t, folder, folder2)

	labels, err := reg.Labels()
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, "xin-chao", labels[0].Slug)
	assert.Equal(t, DefaultDatasetVersion, labels[0].DatasetVersion)
	assert.Equal(t, "2025-03-14T09:26:53.589793Z", labels[0].CreatedAt)

	entries, err := os.ReadDir(reg.FeatureRoot())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRegisterLabel_CaseSensitiveAndGaps(t *testing.T) {
	reg := newTestRegistry(t)

	a, _, err := reg.RegisterLabel("hello", "", "")
	require.NoError(t, err)
	b, _, err := reg.RegisterLabel("Hello", "", "")
	require.NoError(t, err)
	c, _, err := reg.RegisterLabel("thanks", "", "v2")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, []int{a, b, c})

	require.NoError(t, reg.DeleteLabel(b))

	d, folder, err := reg.RegisterLabel("goodbye", "", "")
	require.NoError(t, err)
	assert.Equal(t, 4, d)
	assert.Equal(t, "class_0004_goodbye", folder)
}

func TestRegisterLabel_ConcurrentCallersGetDistinctIndices(t *testing.T) {
	reg := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := reg.RegisterLabel(fmt.Sprintf("sign %d", i), "", "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	labels, err := reg.Labels()
	require.NoError(t, err)
	require.Len(t, labels, 20)
	seen := map[int]bool{}
	for _, l := range labels {
		assert.False(t, seen[l.ClassIdx], "duplicate class_idx %d", l.ClassIdx)
		seen[l.ClassIdx] = true
	}
}

func TestSaveSample_RoundTrip(t *testing.T) {
	reg := newTestRegistry(t)
	idx, folder, err := reg.RegisterLabel("cảm ơn", "", "")
	require.NoError(t, err)

	seq := testSequence(60, 1605)
	duration := 2.5
	path, err := reg.SaveSample(seq, idx, folder, entity.SampleMetadata{
		User:      "lan",
		SessionID: "s-1",
		Frames:    60,
		Duration:  &duration,
		Source:    entity.SourceVideo,
		Dialect:   "north",
		Extra:     map[string]any{"device": "webcam"},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(reg.FeatureRoot(), folder, "sample_0001_00000001.npz"), path)

	got, err := ReadSequence(path)
	require.NoError(t, err)
	assert.Equal(t, 60, got.Frames)
	assert.Equal(t, 1605, got.Dim)
	assert.Equal(t, seq.Data, got.Data)

	meta, err := ReadSidecar(SidecarPath(path))
	require.NoError(t, err)
	assert.Equal(t, "lan", meta["user"])
	assert.Equal(t, "webcam", meta["device"])
	assert.Equal(t, float64(idx), meta["class_idx"])
	assert.Equal(t, folder, meta["folder_name"])
	assert.Equal(t, "00000001", meta["sample_uuid"])
	assert.Equal(t, 2.5, meta["duration"])
	assert.Equal(t, "2025-03-14T09:26:53.589793Z", meta["created_at"])

	samples, err := reg.Samples(SampleFilter{})
	require.NoError(t, err)
	require.Len(t, samples, 1)
	s := samples[0]
	assert.Equal(t, "00000002", s.SampleID)
	assert.Equal(t, "sample_0001_00000001.npz", s.File)
	assert.Equal(t, "60", s.Frames)
	assert.Equal(t, "2.5", s.Duration)
	assert.Equal(t, entity.SourceVideo, s.Source)
	assert.Equal(t, "north", s.Dialect)

	p, err := reg.SamplePath(s.SampleID)
	require.NoError(t, err)
	assert.Equal(t, path, p)
}

func TestSaveSample_EmptyDurationColumn(t *testing.T) {
	reg := newTestRegistry(t)
	idx, folder, err := reg.RegisterLabel("a", "", "")
	require.NoError(t, err)

	_, err = reg.SaveSample(testSequence(3, 4), idx, folder, entity.SampleMetadata{Frames: 3, Source: entity.SourceCamera})
	require.NoError(t, err)

	samples, err := reg.Samples(SampleFilter{Source: entity.SourceCamera})
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Empty(t, samples[0].Duration)
}

func TestMergeLabels(t *testing.T) {
	reg := newTestRegistry(t)
	a, folderA, err := reg.RegisterLabel("A", "", "")
	require.NoError(t, err)
	b, folderB, err := reg.RegisterLabel("B", "", "")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := reg.SaveSample(testSequence(2, 3), a, folderA, entity.SampleMetadata{SessionID: "x"})
		require.NoError(t, err)
	}
	_, err = reg.SaveSample(testSequence(2, 3), b, folderB, entity.SampleMetadata{SessionID: "y"})
	require.NoError(t, err)

	require.NoError(t, reg.MergeLabels(a, b))

	npzFiles, err := filepath.Glob(filepath.Join(reg.FeatureRoot(), folderB, "*.npz"))
	require.NoError(t, err)
	assert.Len(t, npzFiles, 3)
	assert.NoDirExists(t, filepath.Join(reg.FeatureRoot(), folderA))

	labels, err := reg.Labels()
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, b, labels[0].ClassIdx)

	samples, err := reg.Samples(SampleFilter{})
	require.NoError(t, err)
	require.Len(t, samples, 3)
	for _, s := range samples {
		assert.Equal(t, b, s.ClassIdx)
		assert.Equal(t, folderB, s.FolderName)
		assert.FileExists(t, filepath.Join(reg.FeatureRoot(), s.FolderName, s.File))
	}
}

func TestSaveSample_RedrawsTakenFileName(t *testing.T) {
	ids := []string{"deadbeef", "00000001", "deadbeef", "cafef00d", "00000002"}
	next := func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	reg := New(t.TempDir(), zap.NewNop(), WithIDGenerator(next))
	idx, folder, err := reg.RegisterLabel("A", "", "")
	require.NoError(t, err)

	first, err := reg.SaveSample(testSequence(2, 3), idx, folder, entity.SampleMetadata{User: "first"})
	require.NoError(t, err)
	original := readFile(t, first)

	second, err := reg.SaveSample(testSequence(4, 3), idx, folder, entity.SampleMetadata{User: "second"})
	require.NoError(t, err)

	assert.Equal(t, "sample_0001_deadbeef.npz", filepath.Base(first))
	assert.Equal(t, "sample_0001_cafef00d.npz", filepath.Base(second))
	assert.Equal(t, original, readFile(t, first))

	meta, err := ReadSidecar(SidecarPath(first))
	require.NoError(t, err)
	assert.Equal(t, "first", meta["user"])
}

func TestMergeLabels_FailedMoveRestoresFiles(t *testing.T) {
	reg := newTestRegistry(t)
	a, folderA, err := reg.RegisterLabel("A", "", "")
	require.NoError(t, err)
	b, folderB, err := reg.RegisterLabel("B", "", "")
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := reg.SaveSample(testSequence(2, 3), a, folderA, entity.SampleMetadata{})
		require.NoError(t, err)
	}
	samplesBefore := readFile(t, filepath.Join(reg.Root(), SamplesFile))
	labelsBefore := readFile(t, filepath.Join(reg.Root(), LabelsFile))

	calls := 0
	reg.rename = func(oldpath, newpath string) error {
		calls++
		if calls == 3 {
			return errors.New("disk full")
		}
		return os.Rename(oldpath, newpath)
	}

	require.ErrorContains(t, reg.MergeLabels(a, b), "disk full")

	srcFiles, err := os.ReadDir(filepath.Join(reg.FeatureRoot(), folderA))
	require.NoError(t, err)
	assert.Len(t, srcFiles, 4)
	dstFiles, err := os.ReadDir(filepath.Join(reg.FeatureRoot(), folderB))
	require.NoError(t, err)
	assert.Empty(t, dstFiles)
	assert.Equal(t, samplesBefore, readFile(t, filepath.Join(reg.Root(), SamplesFile)))
	assert.Equal(t, labelsBefore, readFile(t, filepath.Join(reg.Root(), LabelsFile)))
}

func TestMergeLabels_EmptySamplesTable(t *testing.T) {
	reg := newTestRegistry(t)
	a, _, err := reg.RegisterLabel("A", "", "")
	require.NoError(t, err)
	b, _, err := reg.RegisterLabel("B", "", "")
	require.NoError(t, err)

	require.NoError(t, reg.MergeLabels(a, b))

	data := readFile(t, filepath.Join(reg.Root(), SamplesFile))
	assert.Equal(t, "sample_id,class_idx,folder_name,file,user,session_id,frames,duration,source,dialect,created_at\n", string(data))
}

func TestMergeLabels_Rejected(t *testing.T) {
	reg := newTestRegistry(t)
	a, _, err := reg.RegisterLabel("A", "", "")
	require.NoError(t, err)
	before := readFile(t, filepath.Join(reg.Root(), LabelsFile))

	assert.ErrorIs(t, reg.MergeLabels(a, 99), ErrLabelNotFound)
	assert.ErrorIs(t, reg.MergeLabels(99, a), ErrLabelNotFound)
	assert.ErrorIs(t, reg.MergeLabels(a, a), ErrSameLabel)

	assert.Equal(t, before, readFile(t, filepath.Join(reg.Root(), LabelsFile)))
	assert.NoFileExists(t, filepath.Join(reg.Root(), SamplesFile))
}

func TestDeleteLabel_InUseIsRejected(t *testing.T) {
	reg := newTestRegistry(t)
	idx, folder, err := reg.RegisterLabel("busy", "", "")
	require.NoError(t, err)
	path, err := reg.SaveSample(testSequence(1, 3), idx, folder, entity.SampleMetadata{})
	require.NoError(t, err)

	labelsBefore := readFile(t, filepath.Join(reg.Root(), LabelsFile))
	samplesBefore := readFile(t, filepath.Join(reg.Root(), SamplesFile))

	err = reg.DeleteLabel(idx)
	assert.ErrorIs(t, err, ErrLabelInUse)

	assert.Equal(t, labelsBefore, readFile(t, filepath.Join(reg.Root(), LabelsFile)))
	assert.Equal(t, samplesBefore, readFile(t, filepath.Join(reg.Root(), SamplesFile)))
	assert.FileExists(t, path)
	assert.FileExists(t, SidecarPath(path))
}

func TestDeleteLabel_NotFound(t *testing.T) {
	reg := newTestRegistry(t)
	assert.ErrorIs(t, reg.DeleteLabel(3), ErrLabelNotFound)
}

func TestUpdateLabel(t *testing.T) {
	reg := newTestRegistry(t)
	a, folderA, err := reg.RegisterLabel("hi", "", "")
	require.NoError(t, err)
	_, _, err = reg.RegisterLabel("bye", "", "")
	require.NoError(t, err)

	name := "hello"
	notes := "renamed"
	label, err := reg.UpdateLabel(a, LabelUpdate{LabelOriginal: &name, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, "hello", label.LabelOriginal)
	assert.Equal(t, "renamed", label.Notes)
	assert.Equal(t, folderA, label.FolderName)

	idx, _, err := reg.RegisterLabel("hello", "", "")
	require.NoError(t, err)
	assert.Equal(t, a, idx)

	dup := "bye"
	_, err = reg.UpdateLabel(a, LabelUpdate{LabelOriginal: &dup})
	assert.ErrorIs(t, err, ErrLabelExists)

	_, err = reg.UpdateLabel(42, LabelUpdate{Notes: &notes})
	assert.ErrorIs(t, err, ErrLabelNotFound)
}

func TestDeleteSample(t *testing.T) {
	reg := newTestRegistry(t)
	idx, folder, err := reg.RegisterLabel("x", "", "")
	require.NoError(t, err)
	keep, err := reg.SaveSample(testSequence(1, 2), idx, folder, entity.SampleMetadata{})
	require.NoError(t, err)
	drop, err := reg.SaveSample(testSequence(1, 2), idx, folder, entity.SampleMetadata{})
	require.NoError(t, err)

	samples, err := reg.Samples(SampleFilter{})
	require.NoError(t, err)
	require.Len(t, samples, 2)

	require.NoError(t, reg.DeleteSample(samples[1].SampleID))
	assert.NoFileExists(t, drop)
	assert.NoFileExists(t, SidecarPath(drop))
	assert.FileExists(t, keep)

	assert.ErrorIs(t, reg.DeleteSample(samples[1].SampleID), ErrSampleNotFound)

	require.NoError(t, reg.DeleteSampleFile(keep))
	samples, err = reg.Samples(SampleFilter{})
	require.NoError(t, err)
	assert.Empty(t, samples)
	require.NoError(t, reg.DeleteLabel(idx))
}

func TestImportSample(t *testing.T) {
	reg := newTestRegistry(t)
	idx, folder, err := reg.RegisterLabel("imported", "", "")
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "upload.npz")
	require.NoError(t, npz.WriteFile(src, map[string]npz.Array{
		"sequences": {Shape: []int{2, 2}, Data: []float32{1, 2, 3, 4}},
	}))

	path, err := reg.ImportSample(idx, readFile(t, src), entity.SampleMetadata{User: "u", Frames: 2, Source: "upload"})
	require.NoError(t, err)
	assert.Equal(t, folder, filepath.Base(filepath.Dir(path)))

	seq, err := ReadSequence(path)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, seq.Data)

	_, err = reg.ImportSample(77, readFile(t, src), entity.SampleMetadata{})
	assert.ErrorIs(t, err, ErrLabelNotFound)

	flat := filepath.Join(t.TempDir(), "flat.npz")
	require.NoError(t, npz.WriteFile(flat, map[string]npz.Array{
		"sequence": {Shape: []int{4}, Data: []float32{1, 2, 3, 4}},
	}))
	_, err = reg.ImportSample(idx, readFile(t, flat), entity.SampleMetadata{})
	assert.ErrorContains(t, err, "2-D")
}

func TestSessions(t *testing.T) {
	reg := newTestRegistry(t)
	hi, hiFolder, err := reg.RegisterLabel("Xin chào", "", "")
	require.NoError(t, err)
	bye, byeFolder, err := reg.RegisterLabel("Tạm biệt", "", "")
	require.NoError(t, err)

	save := func(idx int, folder, user, session string) {
		_, err := reg.SaveSample(testSequence(1, 1), idx, folder, entity.SampleMetadata{User: user, SessionID: session})
		require.NoError(t, err)
	}
	save(hi, hiFolder, "lan", "s1")
	save(bye, byeFolder, "lan", "s1")
	save(hi, hiFolder, "minh", "s2")

	sessions, err := reg.Sessions(SessionFilter{})
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "s1", sessions[0].SessionID)
	assert.Equal(t, 2, sessions[0].SamplesCount)
	assert.Equal(t, []string{"Xin chào", "Tạm biệt"}, sessions[0].Labels)

	byUser, err := reg.Sessions(SessionFilter{User: "minh"})
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "s2", byUser[0].SessionID)

	byLabel, err := reg.Sessions(SessionFilter{Label: "TẠM"})
	require.NoError(t, err)
	require.Len(t, byLabel, 1)
	assert.Equal(t, 1, byLabel[0].SamplesCount)

	byDate, err := reg.Sessions(SessionFilter{Date: "2024"})
	require.NoError(t, err)
	assert.Empty(t, byDate)
}

func TestImportSample_RejectsCorruptShape(t *testing.T) {
	reg := newTestRegistry(t)
	idx, _, err := reg.RegisterLabel("A", "", "")
	require.NoError(t, err)

	header := "{'descr': '<f4', 'fortran_order': False, 'shape': (-1, 5), }\n"
	var npy bytes.Buffer
	npy.WriteString("\x93NUMPY\x01\x00")
	require.NoError(t, binary.Write(&npy, binary.LittleEndian, uint16(len(header))))
	npy.WriteString(header)
	npy.Write(make([]byte, 20))

	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	w, err := zw.Create("sequence.npy")
	require.NoError(t, err)
	_, err = w.Write(npy.Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = reg.ImportSample(idx, archive.Bytes(), entity.SampleMetadata{})
	require.ErrorContains(t, err, "negative dimension")

	samples, err := reg.Samples(SampleFilter{})
	require.NoError(t, err)
	assert.Empty(t, samples)
}
