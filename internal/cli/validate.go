package cli

import (
	"errors"
	"path/filepath"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/signdata/signdata-processing-service/internal/infra/metrics"
	"github.com/signdata/signdata-processing-service/internal/validator"
	"github.com/spf13/cobra"
)

var errValidationFailed = errors.New("dataset validation failed")

func validateCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that every sample has the same shape",
		Long: `Scan every .npz under the feature root and report samples whose shape differs
from the expected one (or the most common one). With --fix, samples with the
right feature dimension are padded or truncated in place.

Do not run this while ingestion is writing to the same dataset.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := validator.Options{
				ExpectedT: mustGetInt(cmd, "expected-t"),
				ExpectedD: mustGetInt(cmd, "expected-d"),
				Fix:       mustGetBool(cmd, "fix"),
			}
			if !mustGetBool(cmd, "quiet") {
				bar := progressbar.NewOptions(-1,
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSetDescription("Scanning"),
					progressbar.OptionShowCount(),
					progressbar.OptionSetItsString("files"),
					progressbar.OptionShowElapsedTimeOnFinish(),
					progressbar.OptionClearOnFinish(),
				)
				defer bar.Finish()
				opts.OnFile = func(string) { _ = bar.Add(1) }
			}

			reg := env.Registry()
			report, err := validator.New(env.Log).Validate(reg.FeatureRoot(), opts)
			if err != nil {
				return err
			}
			metrics.ValidatorMismatches.Set(float64(report.MismatchCount))

			if err := render(cmd, report, func(w *tabwriter.Writer) { reportTable(w, report, reg.FeatureRoot()) }); err != nil {
				return err
			}
			if !report.OK && mustGetBool(cmd, "strict") {
				return errValidationFailed
			}
			return nil
		},
	}
	cmd.Flags().IntP("expected-t", "t", 0, "Expected frame count (default: most common)")
	cmd.Flags().IntP("expected-d", "d", 0, "Expected feature dimension (default: most common)")
	cmd.Flags().Bool("fix", false, "Pad or truncate mismatched samples in place")
	cmd.Flags().Bool("strict", false, "Exit non-zero when the dataset is not consistent")
	cmd.Flags().BoolP("quiet", "q", false, "Hide the progress bar")
	addOutputFlag(cmd)
	return cmd
}

func reportTable(w *tabwriter.Writer, r *validator.Report, root string) {
	rel := func(p string) string {
		if s, err := filepath.Rel(root, p); err == nil {
			return s
		}
		return p
	}

	writeRow(w, "ok", r.OK)
	if r.Reason != "" {
		writeRow(w, "reason", r.Reason)
		writeRow(w, "details", r.Details)
	}
	if r.TargetShape != nil {
		writeRow(w, "target shape", r.TargetShape[:])
	}
	writeRow(w, "samples", r.TotalSamples)
	writeRow(w, "mismatches", r.MismatchCount)
	for _, m := range r.Mismatches {
		if m.Error != "" {
			writeRow(w, "", rel(m.File), m.Error)
			continue
		}
		writeRow(w, "", rel(m.File), m.Shape)
	}
	if r.FixedCount > 0 || len(r.CannotFix) > 0 {
		writeRow(w, "fixed", r.FixedCount)
		for _, u := range r.CannotFix {
			writeRow(w, "cannot fix", rel(u.File), u.Reason)
		}
	}
}
