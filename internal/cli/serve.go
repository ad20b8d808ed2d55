package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/signdata/signdata-processing-service/internal/app"
	"github.com/signdata/signdata-processing-service/internal/infra/ffmpeg"
	"github.com/signdata/signdata-processing-service/internal/infra/httpapi"
	"github.com/signdata/signdata-processing-service/internal/infra/rabbitmq"
	"github.com/signdata/signdata-processing-service/internal/infra/tracing"
	"github.com/signdata/signdata-processing-service/internal/usecase"
	"github.com/signdata/signdata-processing-service/internal/validator"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ingestion and dataset HTTP API",
		Long: `Serve the HTTP API. Video uploads, job tracking and export need PostgreSQL,
RabbitMQ and MinIO; without them (or with --standalone) those routes answer 503
and the camera and dataset routes keep working.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := env.Config, env.Log
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint, "signdata-api")
			if err != nil {
				log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
			} else if tp != nil {
				defer tp.Shutdown(context.Background())
			}

			reg := env.Registry()
			deps := httpapi.Deps{
				Registry:  reg,
				Camera:    usecase.NewCameraIngestion(reg, app.CameraConfig(cfg), log),
				Validator: validator.New(log),
				Logger:    log,
			}

			if !mustGetBool(cmd, "standalone") {
				infra, err := app.Connect(ctx, cfg, log)
				if err != nil {
					log.Warn("infrastructure unavailable, serving dataset routes only", zap.Error(err))
				} else {
					defer infra.Close()
					deps.Enqueue = usecase.NewEnqueueVideoUseCase(
						reg, infra.Storage, infra.Jobs,
						rabbitmq.NewIngestPublisher(infra.Publisher),
						cfg.MaxRetries, log,
					)
					deps.Jobs = infra.Jobs
					deps.Export = usecase.NewExportDatasetUseCase(
						cfg.StoragePath, ffmpeg.NewZipArchiver(), infra.Storage, cfg.TempDir, log,
					)
				}
			}

			port := mustGetInt(cmd, "port")
			if port == 0 {
				port = cfg.HTTPPort
			}
			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", port),
				Handler:           httpapi.NewServer(deps).Router(cfg.CORSOrigins),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("http api listening", zap.Int("port", port), zap.String("dataset", cfg.StoragePath))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			log.Info("shutting down http api")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().Int("port", 0, "Listen port (default HTTP_PORT)")
	cmd.Flags().Bool("standalone", false, "Do not connect to PostgreSQL, RabbitMQ or MinIO")
	return cmd
}
