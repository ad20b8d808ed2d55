package ffmpeg

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// ZipArchiver packs dataset files into a deflate zip, keeping their paths
// relative to a base directory.
type ZipArchiver struct{}

func NewZipArchiver() *ZipArchiver {
	return &ZipArchiver{}
}

// CreateArchive writes relPaths (relative to baseDir) into outputPath. With no
// relPaths, every regular file under baseDir is archived.
func (z *ZipArchiver) CreateArchive(ctx context.Context, baseDir string, relPaths []string, outputPath string) error {
	if len(relPaths) == 0 {
		var err error
		relPaths, err = listFiles(baseDir, outputPath)
		if err != nil {
			return fmt.Errorf("list %s: %w", baseDir, err)
		}
	}

	tmp := outputPath + ".tmp"
	zipFile, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create zip file: %w", err)
	}
	defer os.Remove(tmp)

	zipWriter := zip.NewWriter(zipFile)
	for _, rel := range relPaths {
		select {
		case <-ctx.Done():
			zipWriter.Close()
			zipFile.Close()
			return ctx.Err()
		default:
		}

		if err := addFileToZip(zipWriter, baseDir, rel); err != nil {
			zipWriter.Close()
			zipFile.Close()
			return fmt.Errorf("add %s to zip: %w", rel, err)
		}
	}

	if err := zipWriter.Close(); err != nil {
		zipFile.Close()
		return fmt.Errorf("finish zip: %w", err)
	}
	if err := zipFile.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, outputPath)
}

func listFiles(baseDir, skip string) ([]string, error) {
	skipAbs, _ := filepath.Abs(skip)
	var out []string
	err := filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if abs, _ := filepath.Abs(path); abs == skipAbs || abs == skipAbs+".tmp" {
			return nil
		}
		rel, err := filepath.Rel(baseDir, path)
		if err != nil {
			return err
		}
		out = append(out, rel)
		return nil
	})
	sort.Strings(out)
	return out, err
}

func addFileToZip(zw *zip.Writer, baseDir, rel string) error {
	file, err := os.Open(filepath.Join(baseDir, rel))
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}

	header.Name = filepath.ToSlash(rel)
	header.Method = zip.Deflate

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(writer, file)
	return err
}
