package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/signdata/signdata-processing-service/internal/domain/entity"
	"github.com/signdata/signdata-processing-service/internal/registry"
	"github.com/spf13/cobra"
)

func samplesCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "samples",
		Short: "List and manage samples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := registry.SampleFilter{
				User:      mustGetString(cmd, "user"),
				SessionID: mustGetString(cmd, "session"),
				Source:    mustGetString(cmd, "source"),
			}
			if cmd.Flags().Changed("class") {
				idx := mustGetInt(cmd, "class")
				filter.ClassIdx = &idx
			}
			samples, err := env.Registry().Samples(filter)
			if err != nil {
				return err
			}
			if samples == nil {
				samples = []entity.Sample{}
			}
			return render(cmd, samples, func(w *tabwriter.Writer) {
				writeRow(w, "ID", "IDX", "FILE", "USER", "SESSION", "FRAMES", "SOURCE")
				for _, s := range samples {
					writeRow(w, s.SampleID, s.ClassIdx, s.File, s.User, s.SessionID, s.Frames, s.Source)
				}
			})
		},
	}
	cmd.Flags().Int("class", 0, "Only samples of this class index")
	cmd.Flags().String("user", "", "Only samples of this user")
	cmd.Flags().String("session", "", "Only samples of this session")
	cmd.Flags().String("source", "", "Only samples of this source (video, camera)")
	addOutputFlag(cmd)

	cmd.AddCommand(
		samplesDeleteCommand(env),
		samplesImportCommand(env),
		sessionsCommand(env),
	)
	return cmd
}

func samplesDeleteCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <sample-id...>",
		Short: "Delete samples and their files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := env.Registry()
			for _, id := range args {
				if err := reg.DeleteSample(id); err != nil {
					return err
				}
				printf(cmd, "deleted %s\n", id)
			}
			return nil
		},
	}
}

func samplesImportCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <class-idx> <file.npz>",
		Short: "Import an npz holding a sequence array under an existing label",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseClassIdx(args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[1], err)
			}
			meta := entity.SampleMetadata{
				User:      mustGetString(cmd, "user"),
				SessionID: mustGetString(cmd, "session"),
				Source:    mustGetString(cmd, "source"),
				Dialect:   mustGetString(cmd, "dialect"),
				Frames:    mustGetInt(cmd, "frames"),
			}
			path, err := env.Registry().ImportSample(idx, data, meta)
			if err != nil {
				return err
			}
			printf(cmd, "%s\n", path)
			return nil
		},
	}
	cmd.Flags().String("user", "", "User who recorded the sample")
	cmd.Flags().String("session", "", "Session id")
	cmd.Flags().String("source", entity.SourceVideo, "Sample source")
	cmd.Flags().String("dialect", "", "Dialect")
	cmd.Flags().Int("frames", 0, "Raw frame count")
	return cmd
}

func sessionsCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Group samples by recording session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := env.Registry().Sessions(registry.SessionFilter{
				User:  mustGetString(cmd, "user"),
				Label: mustGetString(cmd, "label"),
				Date:  mustGetString(cmd, "date"),
			})
			if err != nil {
				return err
			}
			if sessions == nil {
				sessions = []entity.Session{}
			}
			return render(cmd, sessions, func(w *tabwriter.Writer) {
				writeRow(w, "SESSION", "USER", "SAMPLES", "LABELS", "CREATED")
				for _, s := range sessions {
					writeRow(w, s.SessionID, s.User, s.SamplesCount, s.Labels, s.CreatedAt)
				}
			})
		},
	}
	cmd.Flags().String("user", "", "Only sessions of this user")
	cmd.Flags().String("label", "", "Only samples whose label contains this text")
	cmd.Flags().String("date", "", "Only samples created on this date (YYYY-MM-DD)")
	addOutputFlag(cmd)
	return cmd
}
