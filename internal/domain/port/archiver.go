package port

import "context"

type Archiver interface {
	CreateArchive(ctx context.Context, baseDir string, relPaths []string, outputPath string) error
}
