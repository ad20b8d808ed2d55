package validator

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/signdata/signdata-processing-service/internal/registry"
	"github.com/signdata/signdata-processing-service/internal/sequence"
	"go.uber.org/zap"
)

const (
	ReasonNoSamples      = "no_samples"
	ReasonNoValidSamples = "no_valid_samples"
)

type Options struct {
	// ExpectedT and ExpectedD fix the target shape; when either is zero the most
	// frequent shape in the corpus is used.
	ExpectedT int
	ExpectedD int
	Fix       bool
	// OnFile is called once per scanned artifact.
	OnFile func(path string)
}

type Shape [2]int

type Mismatch struct {
	File     string `json:"file" yaml:"file"`
	Shape    []int  `json:"shape,omitempty" yaml:"shape,omitempty"`
	ClassIdx any    `json:"class_idx,omitempty" yaml:"class_idx,omitempty"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

type Unfixable struct {
	File   string `json:"file" yaml:"file"`
	Reason string `json:"reason" yaml:"reason"`
}

type Report struct {
	OK            bool        `json:"ok" yaml:"ok"`
	Reason        string      `json:"reason,omitempty" yaml:"reason,omitempty"`
	Details       string      `json:"details,omitempty" yaml:"details,omitempty"`
	TargetShape   *Shape      `json:"target_shape,omitempty" yaml:"target_shape,omitempty"`
	TotalSamples  int         `json:"total_samples" yaml:"total_samples"`
	MismatchCount int         `json:"mismatch_count" yaml:"mismatch_count"`
	Mismatches    []Mismatch  `json:"mismatches" yaml:"mismatches"`
	FixedCount    int         `json:"fixed_count" yaml:"fixed_count"`
	Fixed         []string    `json:"fixed" yaml:"fixed"`
	CannotFix     []Unfixable `json:"cannot_fix" yaml:"cannot_fix"`
}

type scanned struct {
	file     string
	shape    []int
	classIdx any
	err      string
}

type Validator struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Validator {
	return &Validator{logger: logger}
}

// Validate scans every .npz under root. It must not run while ingestion writes to the same corpus.
func (v *Validator) Validate(root string, opts Options) (*Report, error) {
	files, err := findArtifacts(root)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return &Report{
			OK:      false,
			Reason:  ReasonNoSamples,
			Details: "no .npz files found under " + root,
		}, nil
	}

	counts := map[Shape]int{}
	var order []Shape
	infos := make([]scanned, 0, len(files))
	for _, f := range files {
		if opts.OnFile != nil {
			opts.OnFile(f)
		}
		info := scanFile(f)
		if info.err == "" {
			s := Shape{info.shape[0], info.shape[1]}
			if counts[s] == 0 {
				order = append(order, s)
			}
			counts[s]++
		}
		infos = append(infos, info)
	}

	var target Shape
	if opts.ExpectedT > 0 && opts.ExpectedD > 0 {
		target = Shape{opts.ExpectedT, opts.ExpectedD}
	} else {
		if len(order) == 0 {
			return &Report{
				OK:           false,
				Reason:       ReasonNoValidSamples,
				Details:      "no valid sequence arrays found",
				TotalSamples: len(files),
			}, nil
		}
		target = modeShape(order, counts)
	}

	report := &Report{
		TargetShape:  &target,
		TotalSamples: len(files),
		Mismatches:   []Mismatch{},
		Fixed:        []string{},
		CannotFix:    []Unfixable{},
	}
	for _, info := range infos {
		if info.err == "" && info.shape[0] == target[0] && info.shape[1] == target[1] {
			continue
		}
		report.Mismatches = append(report.Mismatches, Mismatch{
			File:     info.file,
			Shape:    info.shape,
			ClassIdx: info.classIdx,
			Error:    info.err,
		})
	}
	report.MismatchCount = len(report.Mismatches)

	if opts.Fix {
		for _, m := range report.Mismatches {
			if reason := v.fix(m.File, target); reason != "" {
				report.CannotFix = append(report.CannotFix, Unfixable{File: m.File, Reason: reason})
				continue
			}
			report.Fixed = append(report.Fixed, m.File)
		}
		report.FixedCount = len(report.Fixed)
	}

	report.OK = report.MismatchCount == 0 && len(report.CannotFix) == 0

	v.logger.Info("validation finished",
		zap.String("root", root),
		zap.Int("total", report.TotalSamples),
		zap.Ints("target_shape", target[:]),
		zap.Int("mismatches", report.MismatchCount),
		zap.Int("fixed", report.FixedCount),
		zap.Int("cannot_fix", len(report.CannotFix)),
	)
	return report, nil
}

// modeShape picks the most frequent shape; order is first-seen order, which breaks ties.
func modeShape(order []Shape, counts map[Shape]int) Shape {
	best := order[0]
	for _, s := range order[1:] {
		if counts[s] > counts[best] {
			best = s
		}
	}
	return best
}

func findArtifacts(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// a corpus that has not been written yet is empty
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".npz") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return files, nil
}

func scanFile(path string) scanned {
	info := scanned{file: path}

	arr, err := registry.ReadArray(path)
	if err != nil {
		info.err = err.Error()
		return info
	}
	info.shape = arr.Shape
	if arr.NDim() != 2 {
		info.err = "ndim!=2"
		return info
	}

	if meta, err := registry.ReadSidecar(registry.SidecarPath(path)); err == nil {
		info.classIdx = meta["class_idx"]
	}
	return info
}

// fix pads or truncates the time axis in place. It returns a reason when the file cannot be repaired.
func (v *Validator) fix(path string, target Shape) string {
	seq, err := registry.ReadSequence(path)
	if err != nil {
		return "no_sequence_or_bad_dim: " + err.Error()
	}
	if seq.Dim != target[1] {
		return fmt.Sprintf("feature_dim_mismatch (%d!=%d)", seq.Dim, target[1])
	}

	fixed := sequence.Normalize(seq, target[0])
	if err := registry.WriteSequence(path, fixed); err != nil {
		return err.Error()
	}
	if err := v.updateFrames(registry.SidecarPath(path), target[0]); err != nil {
		return err.Error()
	}

	v.logger.Debug("sample repaired",
		zap.String("file", path),
		zap.Int("from_frames", seq.Frames),
		zap.Int("to_frames", fixed.Frames),
	)
	return ""
}

// updateFrames rewrites only the frames field of a sidecar, creating it when missing or unreadable.
func (v *Validator) updateFrames(path string, frames int) error {
	meta, err := registry.ReadSidecar(path)
	if err != nil {
		if !os.IsNotExist(err) {
			v.logger.Warn("replacing unreadable sidecar", zap.String("file", path), zap.Error(err))
		}
		meta = map[string]any{}
	}
	meta["frames"] = frames
	return registry.WriteSidecar(path, meta)
}
