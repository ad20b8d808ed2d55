package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/signdata/signdata-processing-service/internal/domain/entity"
	"github.com/signdata/signdata-processing-service/internal/registry"
	"github.com/spf13/cobra"
)

func labelsCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "labels",
		Short: "List and manage labels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			labels, err := env.Registry().Labels()
			if err != nil {
				return err
			}
			if labels == nil {
				labels = []entity.Label{}
			}
			return render(cmd, labels, func(w *tabwriter.Writer) {
				writeRow(w, "IDX", "LABEL", "FOLDER", "VERSION", "CREATED")
				for _, l := range labels {
					writeRow(w, l.ClassIdx, l.LabelOriginal, l.FolderName, l.DatasetVersion, l.CreatedAt)
				}
			})
		},
	}
	addOutputFlag(cmd)

	cmd.AddCommand(
		labelsCreateCommand(env),
		labelsUpdateCommand(env),
		labelsMergeCommand(env),
		labelsDeleteCommand(env),
	)
	return cmd
}

func labelsCreateCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <label>",
		Short: "Register a label, or print the existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version := mustGetString(cmd, "dataset-version")
			if version == "" {
				version = env.Config.DatasetVersion
			}
			idx, folder, err := env.Registry().RegisterLabel(args[0], mustGetString(cmd, "notes"), version)
			if err != nil {
				return err
			}
			printf(cmd, "%d\t%s\n", idx, folder)
			return nil
		},
	}
	cmd.Flags().String("notes", "", "Free-form notes")
	cmd.Flags().String("dataset-version", "", "Dataset version tag (default DATASET_VERSION)")
	return cmd
}

func labelsUpdateCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <class-idx>",
		Short: "Rename a label or edit its notes and version",
		Long: `Update the display name, notes or dataset version of a label. Only the flags
given are changed; the slug and folder keep their original value.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseClassIdx(args[0])
			if err != nil {
				return err
			}
			var upd registry.LabelUpdate
			if cmd.Flags().Changed("label") {
				v := mustGetString(cmd, "label")
				upd.LabelOriginal = &v
			}
			if cmd.Flags().Changed("notes") {
				v := mustGetString(cmd, "notes")
				upd.Notes = &v
			}
			if cmd.Flags().Changed("dataset-version") {
				v := mustGetString(cmd, "dataset-version")
				upd.DatasetVersion = &v
			}
			label, err := env.Registry().UpdateLabel(idx, upd)
			if err != nil {
				return err
			}
			printf(cmd, "updated %d: %s\n", label.ClassIdx, label.LabelOriginal)
			return nil
		},
	}
	cmd.Flags().String("label", "", "New display name")
	cmd.Flags().String("notes", "", "New notes")
	cmd.Flags().String("dataset-version", "", "New dataset version tag")
	return cmd
}

func labelsMergeCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "merge <src-class-idx> <dst-class-idx>",
		Short: "Move every sample of src into dst and remove src",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := parseClassIdx(args[0])
			if err != nil {
				return err
			}
			dst, err := parseClassIdx(args[1])
			if err != nil {
				return err
			}
			if err := env.Registry().MergeLabels(src, dst); err != nil {
				return err
			}
			printf(cmd, "merged %d into %d\n", src, dst)
			return nil
		},
	}
}

func labelsDeleteCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <class-idx>",
		Short: "Delete a label that no sample references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseClassIdx(args[0])
			if err != nil {
				return err
			}
			if err := env.Registry().DeleteLabel(idx); err != nil {
				return err
			}
			printf(cmd, "deleted %d\n", idx)
			return nil
		},
	}
}

func parseClassIdx(s string) (int, error) {
	idx, err := strconv.Atoi(s)
	if err != nil || idx <= 0 {
		return 0, fmt.Errorf("invalid class index %q", s)
	}
	return idx, nil
}
