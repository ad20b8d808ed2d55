package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/signdata/signdata-processing-service/internal/app"
	"github.com/signdata/signdata-processing-service/internal/usecase"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func processCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <video>",
		Short: "Run the keypoint pipeline on a local video file",
		Long: `Sample frames from a video, extract holistic keypoints through the landmark
sidecar, augment and save the samples into the dataset root. No queue, database
or object store is involved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err != nil {
				return fmt.Errorf("video %s: %w", args[0], err)
			}
			label := mustGetString(cmd, "label")
			if label == "" {
				return fmt.Errorf("--label is required")
			}
			if cmd.Flags().Changed("frame-augment") {
				env.Config.FrameAugment = mustGetBool(cmd, "frame-augment")
			}

			ctx := cmd.Context()
			pipeline, estimator := app.NewPipeline(env.Config, env.Registry(), env.Log)
			if wait := mustGetDuration(cmd, "wait"); wait > 0 {
				if err := estimator.WaitForReady(ctx, wait, time.Second); err != nil {
					return err
				}
			}

			res, err := pipeline.Process(ctx, usecase.VideoRequest{
				VideoPath: args[0],
				User:      mustGetString(cmd, "user"),
				Label:     label,
				SessionID: mustGetString(cmd, "session"),
				Dialect:   mustGetString(cmd, "dialect"),
			})
			if err != nil {
				env.Log.Error("video processing failed", zap.Error(err), zap.Bool("permanent", usecase.IsPermanent(err)))
				return err
			}
			printf(cmd, "%s\n", res)
			for _, p := range res.SavedPaths {
				printf(cmd, "  %s\n", p)
			}
			return nil
		},
	}
	cmd.Flags().StringP("label", "l", "", "Sign label (registered on first use)")
	cmd.Flags().String("user", "", "User who recorded the clip")
	cmd.Flags().String("session", "", "Session id")
	cmd.Flags().String("dialect", "", "Dialect")
	cmd.Flags().Bool("frame-augment", false, "Also extract flipped, brightened and noisy frame variants")
	cmd.Flags().Duration("wait", 0, "Wait up to this long for the landmark sidecar")
	return cmd
}

func mustGetDuration(cmd *cobra.Command, name string) time.Duration {
	val, err := cmd.Flags().GetDuration(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}
