package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/signdata/signdata-processing-service/internal/domain/entity"
	"go.uber.org/zap"
)

type LabelUpdate struct {
	LabelOriginal  *string
	Notes          *string
	DatasetVersion *string
}

// RegisterLabel returns the class index and folder of labelOriginal, creating the
// label on first use. Matching is exact and case-sensitive.
func (r *Registry) RegisterLabel(labelOriginal, notes, datasetVersion string) (int, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	labels, err := r.readLabels()
	if err != nil {
		return 0, "", err
	}

	next := 1
	for _, l := range labels {
		if l.LabelOriginal == labelOriginal {
			return l.ClassIdx, l.FolderName, nil
		}
		if l.ClassIdx >= next {
			next = l.ClassIdx + 1
		}
	}

	if datasetVersion == "" {
		datasetVersion = DefaultDatasetVersion
	}
	slug := Slugify(labelOriginal, DefaultSlugMaxLen)
	label := entity.Label{
		ClassIdx:       next,
		LabelOriginal:  labelOriginal,
		Slug:           slug,
		FolderName:     fmt.Sprintf("class_%04d_%s", next, slug),
		CreatedAt:      r.timestamp(),
		DatasetVersion: datasetVersion,
		Notes:          notes,
	}

	if err := r.writeLabels(append(labels, label)); err != nil {
		return 0, "", err
	}
	if err := os.MkdirAll(r.folderPath(label.FolderName), 0755); err != nil {
		return 0, "", fmt.Errorf("create label folder: %w", err)
	}

	r.logger.Info("label registered",
		zap.Int("class_idx", label.ClassIdx),
		zap.String("folder", label.FolderName),
	)
	return label.ClassIdx, label.FolderName, nil
}

func (r *Registry) Labels() ([]entity.Label, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readLabels()
}

func (r *Registry) Label(classIdx int) (entity.Label, error) {
	labels, err := r.Labels()
	if err != nil {
		return entity.Label{}, err
	}
	l, ok := findLabel(labels, classIdx)
	if !ok {
		return entity.Label{}, fmt.Errorf("%w: %d", ErrLabelNotFound, classIdx)
	}
	return l, nil
}

// UpdateLabel edits display fields. Slug and folder are kept so sample references stay valid.
func (r *Registry) UpdateLabel(classIdx int, upd LabelUpdate) (entity.Label, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	labels, err := r.readLabels()
	if err != nil {
		return entity.Label{}, err
	}

	pos := -1
	for i, l := range labels {
		if l.ClassIdx == classIdx {
			pos = i
		}
	}
	if pos < 0 {
		return entity.Label{}, fmt.Errorf("%w: %d", ErrLabelNotFound, classIdx)
	}

	if upd.LabelOriginal != nil {
		for _, l := range labels {
			if l.ClassIdx != classIdx && l.LabelOriginal == *upd.LabelOriginal {
				return entity.Label{}, fmt.Errorf("%w: %q is class %d", ErrLabelExists, l.LabelOriginal, l.ClassIdx)
			}
		}
		labels[pos].LabelOriginal = *upd.LabelOriginal
	}
	if upd.Notes != nil {
		labels[pos].Notes = *upd.Notes
	}
	if upd.DatasetVersion != nil {
		labels[pos].DatasetVersion = *upd.DatasetVersion
	}

	if err := r.writeLabels(labels); err != nil {
		return entity.Label{}, err
	}
	return labels[pos], nil
}

// MergeLabels moves every sample of src into dst and removes src.
// Nothing is touched when either label is missing.
func (r *Registry) MergeLabels(src, dst int) error {
	if src == dst {
		return fmt.Errorf("%w: %d", ErrSameLabel, src)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	labels, err := r.readLabels()
	if err != nil {
		return err
	}
	srcLabel, ok := findLabel(labels, src)
	if !ok {
		return fmt.Errorf("%w: source %d", ErrLabelNotFound, src)
	}
	dstLabel, ok := findLabel(labels, dst)
	if !ok {
		return fmt.Errorf("%w: destination %d", ErrLabelNotFound, dst)
	}
	samples, err := r.readSamples()
	if err != nil {
		return err
	}

	srcDir := r.folderPath(srcLabel.FolderName)
	dstDir := r.folderPath(dstLabel.FolderName)
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return fmt.Errorf("create destination folder: %w", err)
	}

	entries, err := os.ReadDir(srcDir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("list source folder: %w", err)
	}
	var moved []string
	undo := func() {
		for _, name := range moved {
			if err := r.rename(filepath.Join(dstDir, name), filepath.Join(srcDir, name)); err != nil {
				r.logger.Error("failed to restore merged file", zap.String("file", name), zap.Error(err))
			}
		}
	}
	for _, e := range entries {
		target := filepath.Join(dstDir, e.Name())
		if _, err := os.Lstat(target); err == nil {
			undo()
			return fmt.Errorf("move %s: destination already exists", e.Name())
		}
		if err := r.rename(filepath.Join(srcDir, e.Name()), target); err != nil {
			undo()
			return fmt.Errorf("move %s: %w", e.Name(), err)
		}
		moved = append(moved, e.Name())
	}

	rewritten := 0
	for i := range samples {
		if samples[i].ClassIdx == src {
			samples[i].ClassIdx = dst
			samples[i].FolderName = dstLabel.FolderName
			rewritten++
		}
	}
	if err := r.writeSamples(samples); err != nil {
		undo()
		return err
	}

	kept := labels[:0]
	for _, l := range labels {
		if l.ClassIdx != src {
			kept = append(kept, l)
		}
	}
	if err := r.writeLabels(kept); err != nil {
		return err
	}

	if err := os.RemoveAll(srcDir); err != nil {
		r.logger.Warn("failed to remove merged label folder", zap.String("folder", srcDir), zap.Error(err))
	}

	r.logger.Info("labels merged",
		zap.Int("src", src),
		zap.Int("dst", dst),
		zap.Int("files_moved", len(moved)),
		zap.Int("samples_rewritten", rewritten),
	)
	return nil
}

// DeleteLabel removes an unreferenced label and its folder.
func (r *Registry) DeleteLabel(classIdx int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	labels, err := r.readLabels()
	if err != nil {
		return err
	}
	label, ok := findLabel(labels, classIdx)
	if !ok {
		return fmt.Errorf("%w: %d", ErrLabelNotFound, classIdx)
	}

	samples, err := r.readSamples()
	if err != nil {
		return err
	}
	refs := 0
	for _, s := range samples {
		if s.ClassIdx == classIdx {
			refs++
		}
	}
	if refs > 0 {
		return fmt.Errorf("%w: class %d has %d samples", ErrLabelInUse, classIdx, refs)
	}

	kept := make([]entity.Label, 0, len(labels))
	for _, l := range labels {
		if l.ClassIdx != classIdx {
			kept = append(kept, l)
		}
	}
	if err := r.writeLabels(kept); err != nil {
		return err
	}
	if err := os.RemoveAll(r.folderPath(label.FolderName)); err != nil {
		return fmt.Errorf("remove label folder: %w", err)
	}

	r.logger.Info("label deleted", zap.Int("class_idx", classIdx))
	return nil
}

func findLabel(labels []entity.Label, classIdx int) (entity.Label, bool) {
	for _, l := range labels {
		if l.ClassIdx == classIdx {
			return l, true
		}
	}
	return entity.Label{}, false
}

func (r *Registry) readLabels() ([]entity.Label, error) {
	rows, err := readTable(r.labelsPath())
	if err != nil {
		return nil, err
	}
	labels := make([]entity.Label, 0, len(rows))
	for _, rw := range rows {
		idx, err := strconv.Atoi(rw["class_idx"])
		if err != nil {
			return nil, fmt.Errorf("labels.csv: bad class_idx %q", rw["class_idx"])
		}
		labels = append(labels, entity.Label{
			ClassIdx:       idx,
			LabelOriginal:  rw["label_original"],
			Slug:           rw["slug"],
			FolderName:     rw["folder_name"],
			CreatedAt:      rw["created_at"],
			DatasetVersion: rw["dataset_version"],
			Notes:          rw["notes"],
		})
	}
	return labels, nil
}

func (r *Registry) writeLabels(labels []entity.Label) error {
	rows := make([]row, len(labels))
	for i, l := range labels {
		rows[i] = row{
			"class_idx":       strconv.Itoa(l.ClassIdx),
			"label_original":  l.LabelOriginal,
			"slug":            l.Slug,
			"folder_name":     l.FolderName,
			"created_at":      l.CreatedAt,
			"dataset_version": l.DatasetVersion,
			"notes":           l.Notes,
		}
	}
	if err := writeTable(r.labelsPath(), labelColumns, rows); err != nil {
		return fmt.Errorf("write labels: %w", err)
	}
	return nil
}
