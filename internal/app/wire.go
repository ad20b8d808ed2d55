// Package app assembles the processing components from configuration. It is shared
// by the queue worker and the signdata CLI.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/signdata/signdata-processing-service/internal/infra/config"
	"github.com/signdata/signdata-processing-service/internal/infra/ffmpeg"
	"github.com/signdata/signdata-processing-service/internal/infra/mediapipe"
	miniostorage "github.com/signdata/signdata-processing-service/internal/infra/minio"
	"github.com/signdata/signdata-processing-service/internal/infra/postgres"
	"github.com/signdata/signdata-processing-service/internal/infra/rabbitmq"
	"github.com/signdata/signdata-processing-service/internal/keypoints"
	"github.com/signdata/signdata-processing-service/internal/registry"
	"github.com/signdata/signdata-processing-service/internal/sequence"
	"github.com/signdata/signdata-processing-service/internal/usecase"
	"go.uber.org/zap"
)

func Topology(cfg *config.Config) rabbitmq.Topology {
	return rabbitmq.Topology{
		Exchange:    cfg.RabbitMQExchange,
		IngestQueue: cfg.RabbitMQIngestQueue,
		StatusQueue: cfg.RabbitMQStatusQueue,
		DLQ:         cfg.RabbitMQDLQ,
	}
}

func PipelineConfig(cfg *config.Config) usecase.PipelineConfig {
	pc := usecase.DefaultPipelineConfig()
	pc.TargetFPS = cfg.TargetFPS
	pc.TargetFrames = cfg.TargetFrames
	pc.RenormalizeAugmented = cfg.RenormalizeAugmented
	pc.FrameAugment = cfg.FrameAugment
	pc.DatasetVersion = cfg.DatasetVersion
	return pc
}

func CameraConfig(cfg *config.Config) usecase.CameraConfig {
	return usecase.CameraConfig{TargetFrames: cfg.CameraTargetFrames, DatasetVersion: cfg.DatasetVersion}
}

// NewRegistry opens the dataset root named by STORAGE_PATH.
func NewRegistry(cfg *config.Config, log *zap.Logger) *registry.Registry {
	return registry.New(cfg.StoragePath, log)
}

// NewPipeline builds the video pipeline against the landmark sidecar.
func NewPipeline(cfg *config.Config, reg *registry.Registry, log *zap.Logger) (*usecase.VideoPipeline, *mediapipe.Client) {
	estimator := mediapipe.NewClient(cfg.LandmarkSidecarURL, cfg.LandmarkBatchSize, cfg.LandmarkTimeout, log)
	pipeline := usecase.NewVideoPipeline(
		ffmpeg.NewSampler(log),
		keypoints.NewExtractor(estimator, keypoints.DefaultLayout(), log),
		sequence.NewAugmenter(sequence.DefaultAugmentConfig(), nil),
		reg,
		PipelineConfig(cfg),
		log,
	)
	return pipeline, estimator
}

// NewStorage connects to MinIO and makes sure both buckets exist.
func NewStorage(ctx context.Context, cfg *config.Config) (*miniostorage.Storage, error) {
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      cfg.MinIOEndpoint,
		AccessKey:     cfg.MinIOAccessKey,
		SecretKey:     cfg.MinIOSecretKey,
		UseSSL:        cfg.MinIOUseSSL,
		UploadBucket:  cfg.MinIOUploadBucket,
		DatasetBucket: cfg.MinIODatasetBucket,
	})
	if err != nil {
		return nil, err
	}
	if err := storage.EnsureBuckets(ctx); err != nil {
		return nil, fmt.Errorf("ensure minio buckets: %w", err)
	}
	return storage, nil
}

// Infra holds the connections to the external services a deployment talks to.
type Infra struct {
	Pool      *pgxpool.Pool
	Conn      *amqp.Connection
	Storage   *miniostorage.Storage
	Publisher *rabbitmq.Publisher
	Jobs      *postgres.JobRepository
}

func Connect(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Infra, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := postgres.RunMigrations(ctx, pool, log); err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	storage, err := NewStorage(ctx, cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	conn, err := rabbitmq.Dial(cfg.RabbitMQURL, Topology(cfg))
	if err != nil {
		pool.Close()
		return nil, err
	}
	pub, err := rabbitmq.NewPublisher(conn, cfg.RabbitMQExchange)
	if err != nil {
		conn.Close()
		pool.Close()
		return nil, err
	}

	return &Infra{
		Pool:      pool,
		Conn:      conn,
		Storage:   storage,
		Publisher: pub,
		Jobs:      postgres.NewJobRepository(pool),
	}, nil
}

func (i *Infra) Close() {
	if i.Publisher != nil {
		i.Publisher.Close()
	}
	if i.Conn != nil {
		i.Conn.Close()
	}
	if i.Pool != nil {
		i.Pool.Close()
	}
}
