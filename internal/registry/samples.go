package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/signdata/signdata-processing-service/internal/domain/entity"
	"github.com/signdata/signdata-processing-service/internal/infra/npz"
	"go.uber.org/zap"
)

type SampleFilter struct {
	ClassIdx  *int
	User      string
	SessionID string
	Source    string
}

func (f SampleFilter) match(s entity.Sample) bool {
	if f.ClassIdx != nil && s.ClassIdx != *f.ClassIdx {
		return false
	}
	if f.User != "" && s.User != f.User {
		return false
	}
	if f.SessionID != "" && s.SessionID != f.SessionID {
		return false
	}
	if f.Source != "" && s.Source != f.Source {
		return false
	}
	return true
}

// SaveSample writes sample_<idx>_<hex>.npz and its JSON sidecar into folderName,
// then appends the samples.csv row. It returns the npz path.
func (r *Registry) SaveSample(seq entity.Sequence, classIdx int, folderName string, meta entity.SampleMetadata) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dir := r.folderPath(folderName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create sample folder: %w", err)
	}

	sampleUUID, stem, err := r.freeStem(dir, classIdx)
	if err != nil {
		return "", err
	}
	npzPath := filepath.Join(dir, stem+".npz")
	createdAt := r.timestamp()

	if err := WriteSequence(npzPath, seq); err != nil {
		return "", err
	}

	sidecar := sidecarFields(meta)
	sidecar["class_idx"] = classIdx
	sidecar["folder_name"] = folderName
	sidecar["sample_uuid"] = sampleUUID
	sidecar["created_at"] = createdAt
	if err := WriteSidecar(SidecarPath(npzPath), sidecar); err != nil {
		_ = removeArtifacts(npzPath)
		return "", err
	}

	sample := entity.Sample{
		SampleID:   r.newID(),
		ClassIdx:   classIdx,
		FolderName: folderName,
		File:       stem + ".npz",
		User:       meta.User,
		SessionID:  meta.SessionID,
		Frames:     strconv.Itoa(meta.Frames),
		Source:     meta.Source,
		Dialect:    meta.Dialect,
		CreatedAt:  createdAt,
	}
	if meta.Duration != nil {
		sample.Duration = strconv.FormatFloat(*meta.Duration, 'f', -1, 64)
	}

	samples, err := r.readSamples()
	if err == nil {
		err = r.writeSamples(append(samples, sample))
	}
	if err != nil {
		_ = removeArtifacts(npzPath)
		return "", err
	}

	r.logger.Debug("sample saved",
		zap.String("sample_id", sample.SampleID),
		zap.String("file", sample.File),
		zap.Int("frames", seq.Frames),
		zap.Int("dim", seq.Dim),
	)
	return npzPath, nil
}

const maxStemAttempts = 16

// freeStem draws ids until sample_<idx>_<id> names no existing artifact in dir.
func (r *Registry) freeStem(dir string, classIdx int) (string, string, error) {
	for i := 0; i < maxStemAttempts; i++ {
		id := r.newID()
		stem := fmt.Sprintf("sample_%04d_%s", classIdx, id)
		_, errNPZ := os.Lstat(filepath.Join(dir, stem+".npz"))
		_, errJSON := os.Lstat(filepath.Join(dir, stem+".json"))
		if os.IsNotExist(errNPZ) && os.IsNotExist(errJSON) {
			return id, stem, nil
		}
	}
	return "", "", fmt.Errorf("no free sample file name in %s after %d attempts", dir, maxStemAttempts)
}

func sidecarFields(meta entity.SampleMetadata) map[string]any {
	out := make(map[string]any, len(meta.Extra)+10)
	for k, v := range meta.Extra {
		out[k] = v
	}
	out["user"] = meta.User
	out["session_id"] = meta.SessionID
	out["frames"] = meta.Frames
	out["source"] = meta.Source
	out["dialect"] = meta.Dialect
	if meta.Duration != nil {
		out["duration"] = *meta.Duration
	}
	return out
}

// ImportSample stores the "sequence" array of an uploaded npz archive under an existing label.
func (r *Registry) ImportSample(classIdx int, archive []byte, meta entity.SampleMetadata) (string, error) {
	label, err := r.Label(classIdx)
	if err != nil {
		return "", err
	}

	arrays, err := npz.Read(archive)
	if err != nil {
		return "", fmt.Errorf("read uploaded archive: %w", err)
	}
	arr, err := npz.Lookup(arrays, sequenceKeys...)
	if err != nil {
		return "", err
	}
	seq, err := sequenceFromArray(arr)
	if err != nil {
		return "", err
	}

	return r.SaveSample(seq, label.ClassIdx, label.FolderName, meta)
}

func (r *Registry) Samples(filter SampleFilter) ([]entity.Sample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	samples, err := r.readSamples()
	if err != nil {
		return nil, err
	}
	out := make([]entity.Sample, 0, len(samples))
	for _, s := range samples {
		if filter.match(s) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *Registry) Sample(sampleID string) (entity.Sample, error) {
	samples, err := r.Samples(SampleFilter{})
	if err != nil {
		return entity.Sample{}, err
	}
	for _, s := range samples {
		if s.SampleID == sampleID {
			return s, nil
		}
	}
	return entity.Sample{}, fmt.Errorf("%w: %s", ErrSampleNotFound, sampleID)
}

// SamplePath resolves the npz artifact of a sample row.
func (r *Registry) SamplePath(sampleID string) (string, error) {
	s, err := r.Sample(sampleID)
	if err != nil {
		return "", err
	}
	return filepath.Join(r.folderPath(s.FolderName), s.File), nil
}

func (r *Registry) DeleteSample(sampleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.deleteSampleWhere(func(s entity.Sample) bool { return s.SampleID == sampleID }, sampleID)
}

// DeleteSampleFile removes the row and artifacts of a sample by its npz path.
func (r *Registry) DeleteSampleFile(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	folder := filepath.Base(filepath.Dir(path))
	file := filepath.Base(path)
	return r.deleteSampleWhere(func(s entity.Sample) bool {
		return s.FolderName == folder && s.File == file
	}, file)
}

func (r *Registry) deleteSampleWhere(match func(entity.Sample) bool, ref string) error {
	samples, err := r.readSamples()
	if err != nil {
		return err
	}

	var target *entity.Sample
	kept := make([]entity.Sample, 0, len(samples))
	for i := range samples {
		if target == nil && match(samples[i]) {
			target = &samples[i]
			continue
		}
		kept = append(kept, samples[i])
	}
	if target == nil {
		return fmt.Errorf("%w: %s", ErrSampleNotFound, ref)
	}

	if err := r.writeSamples(kept); err != nil {
		return err
	}
	if err := removeArtifacts(filepath.Join(r.folderPath(target.FolderName), target.File)); err != nil {
		return fmt.Errorf("remove sample files: %w", err)
	}

	r.logger.Info("sample deleted", zap.String("sample_id", target.SampleID), zap.String("file", target.File))
	return nil
}

func (r *Registry) readSamples() ([]entity.Sample, error) {
	rows, err := readTable(r.samplesPath())
	if err != nil {
		return nil, err
	}
	samples := make([]entity.Sample, 0, len(rows))
	for _, rw := range rows {
		idx, err := strconv.Atoi(rw["class_idx"])
		if err != nil {
			return nil, fmt.Errorf("samples.csv: bad class_idx %q", rw["class_idx"])
		}
		samples = append(samples, entity.Sample{
			SampleID:   rw["sample_id"],
			ClassIdx:   idx,
			FolderName: rw["folder_name"],
			File:       rw["file"],
			User:       rw["user"],
			SessionID:  rw["session_id"],
			Frames:     rw["frames"],
			Duration:   rw["duration"],
			Source:     rw["source"],
			Dialect:    rw["dialect"],
			CreatedAt:  rw["created_at"],
		})
	}
	return samples, nil
}

func (r *Registry) writeSamples(samples []entity.Sample) error {
	rows := make([]row, len(samples))
	for i, s := range samples {
		rows[i] = row{
			"sample_id":   s.SampleID,
			"class_idx":   strconv.Itoa(s.ClassIdx),
			"folder_name": s.FolderName,
			"file":        s.File,
			"user":        s.User,
			"session_id":  s.SessionID,
			"frames":      s.Frames,
			"duration":    s.Duration,
			"source":      s.Source,
			"dialect":     s.Dialect,
			"created_at":  s.CreatedAt,
		}
	}
	if err := writeTable(r.samplesPath(), sampleColumns, rows); err != nil {
		return fmt.Errorf("write samples: %w", err)
	}
	return nil
}
