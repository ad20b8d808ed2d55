package cli

import (
	"fmt"
	"os"

	"github.com/signdata/signdata-processing-service/internal/app"
	"github.com/signdata/signdata-processing-service/internal/infra/ffmpeg"
	"github.com/signdata/signdata-processing-service/internal/usecase"
	"github.com/spf13/cobra"
)

func exportCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Zip the dataset and upload it to the dataset bucket",
		Long: `Zip labels.csv, samples.csv and the feature tree. The archive is uploaded to
MINIO_DATASET_BUCKET, or written to a local file with --local.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			root := env.Config.StoragePath
			archiver := ffmpeg.NewZipArchiver()

			if local := mustGetString(cmd, "local"); local != "" {
				if err := archiver.CreateArchive(ctx, root, nil, local); err != nil {
					return fmt.Errorf("create archive: %w", err)
				}
				info, err := os.Stat(local)
				if err != nil {
					return err
				}
				printf(cmd, "%s\t%d bytes\n", local, info.Size())
				return nil
			}

			storage, err := app.NewStorage(ctx, env.Config)
			if err != nil {
				return err
			}
			res, err := usecase.NewExportDatasetUseCase(root, archiver, storage, env.Config.TempDir, env.Log).Execute(ctx)
			if err != nil {
				return err
			}
			printf(cmd, "%s/%s\t%d bytes\n", env.Config.MinIODatasetBucket, res.ObjectKey, res.Size)
			return nil
		},
	}
	cmd.Flags().String("local", "", "Write the archive to this path instead of uploading it")
	return cmd
}
