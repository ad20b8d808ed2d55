package port

import "github.com/signdata/signdata-processing-service/internal/domain/entity"

// SampleRegistry is the write side of the dataset registry used by ingestion.
type SampleRegistry interface {
	RegisterLabel(labelOriginal, notes, datasetVersion string) (int, string, error)
	SaveSample(seq entity.Sequence, classIdx int, folderName string, meta entity.SampleMetadata) (string, error)
	DeleteSampleFile(path string) error
}
