package extract

import (
	"errors"
	"fmt"
	"os"

	"github.com/manualforge/ragcore/internal/core"
	"github.com/manualforge/ragcore/internal/models"
	"github.com/manualforge/ragcore/internal/pkg/logger"
)

var (
	// ErrUnsupportedFormat means the declared file type has no extractor.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrExtractionFailed means every applicable extractor failed on the file.
	ErrExtractionFailed = errors.New("text extraction failed")
)

// MinTextLength is the smallest extraction result the pipeline accepts.
// Anything shorter is treated as a failed ingestion, not an empty success.
const MinTextLength = 10

// FileExtractor dispatches a local file to the format-specific extractor.
type FileExtractor struct {
	log *logger.Logger
}

var _ core.Extractor = (*FileExtractor)(nil)

func NewFileExtractor(log *logger.Logger) *FileExtractor {
	if log == nil {
		log = logger.NewNop()
	}
	return &FileExtractor{log: log}
}

// Extract returns the file's full text plus format-specific metadata
// (page/sheet/paragraph counts and which method produced the text).
func (e *FileExtractor) Extract(path string, fileType models.FileType) (string, models.Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("%w: read %s: %v", ErrExtractionFailed, path, err)
	}

	switch fileType {
	case models.FileTypePDF:
		return e.extractPDF(data)
	case models.FileTypeDOCX:
		return extractDOCX(data)
	case models.FileTypeXLSX:
		return extractXLSX(data)
	case models.FileTypeCSV:
		return extractCSV(data)
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, fileType)
	}
}

// extractCSV reads the raw text as-is; rows keep their source shape.
func extractCSV(data []byte) (string, models.Metadata, error) {
	return string(data), models.Metadata{"format": "csv"}, nil
}
