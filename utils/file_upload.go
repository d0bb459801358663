package utils

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nfnt/resize"
)

// SizeLimitError reports a file above the byte ceiling
type SizeLimitError struct {
	Name string
	Size int64
	Max  int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("file too large: %s is %s (max %s)", e.Name, FormatFileSize(e.Size), FormatFileSize(e.Max))
}

// UnsupportedTypeError reports a file outside the supported categories
type UnsupportedTypeError struct {
	Name string
	Ext  string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("file type not supported: %s (%s)", e.Name, e.Ext)
}

// FileCategory classifies supported upload extensions
type FileCategory string

const (
	CategoryText     FileCategory = "text"
	CategoryDocument FileCategory = "document"
	CategoryImage    FileCategory = "image"
	CategoryCode     FileCategory = "code"
)

// CSVMetadata describes a parsed CSV attachment
type CSVMetadata struct {
	Headers []string            `json:"headers"`
	Rows    int                 `json:"rows"`
	Columns int                 `json:"columns"`
	Preview []map[string]string `json:"preview"` // at most 5 data rows
}

// ProcessedFile is the structured record produced for one upload, staged
// until it is captured into a sent message.
type ProcessedFile struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	MimeType   string       `json:"mime_type"`
	Size       int64        `json:"size"`
	Content    string       `json:"content"`
	Preview    string       `json:"preview,omitempty"` // data URI for images
	CSV        *CSVMetadata `json:"csv,omitempty"`
	Parsed     interface{}  `json:"parsed,omitempty"` // decoded object for valid JSON files
	UploadedAt time.Time    `json:"uploaded_at"`

	// Raw image bytes for multimodal provider calls; not persisted
	ImageData []byte `json:"-"`
}

// IsImage reports whether the record came from an image upload
func (f *ProcessedFile) IsImage() bool {
	return strings.HasPrefix(f.MimeType, "image/")
}

// FileUploadHandler validates and processes uploaded files
type FileUploadHandler struct {
	maxFileSize  int64 // Maximum file size in bytes
	maxImageSize uint  // Maximum preview dimension (width or height)
	imageQuality int   // JPEG quality (1-100)
	categories   map[string]FileCategory
	logger       *Logger
}

// MaxUploadSize is the fixed byte ceiling for a single file
const MaxUploadSize = 10 * 1024 * 1024 // 10 MiB

// NewFileUploadHandler creates a file upload handler with default settings
func NewFileUploadHandler(logger *Logger) *FileUploadHandler {
	return &FileUploadHandler{
		maxFileSize:  MaxUploadSize,
		maxImageSize: 512,
		imageQuality: 85,
		logger:       logger,
		categories: map[string]FileCategory{
			// Text files
			".txt": CategoryText, ".md": CategoryText, ".csv": CategoryText,
			".json": CategoryText, ".xml": CategoryText, ".yaml": CategoryText,
			".yml": CategoryText, ".log": CategoryText,
			// Documents
			".pdf": CategoryDocument, ".doc": CategoryDocument,
			".docx": CategoryDocument, ".rtf": CategoryDocument,
			".odt": CategoryDocument,
			// Images
			".png": CategoryImage, ".jpg": CategoryImage, ".jpeg": CategoryImage,
			".gif": CategoryImage, ".webp": CategoryImage, ".bmp": CategoryImage,
			// Code files
			".go": CategoryCode, ".py": CategoryCode, ".js": CategoryCode,
			".ts": CategoryCode, ".java": CategoryCode, ".c": CategoryCode,
			".cpp": CategoryCode, ".h": CategoryCode, ".rs": CategoryCode,
			".rb": CategoryCode, ".sh": CategoryCode, ".sql": CategoryCode,
			".html": CategoryCode, ".css": CategoryCode,
		},
	}
}

// ProcessFile validates a file and produces its ProcessedFile record
func (h *FileUploadHandler) ProcessFile(filePath string) (*ProcessedFile, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("file not found: %w", err)
	}

	name := filepath.Base(filePath)

	// Exactly the ceiling is still accepted
	if fileInfo.Size() > h.maxFileSize {
		return nil, &SizeLimitError{Name: name, Size: fileInfo.Size(), Max: h.maxFileSize}
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	category, ok := h.categories[ext]
	if !ok {
		return nil, &UnsupportedTypeError{Name: name, Ext: ext}
	}

	pf := &ProcessedFile{
		ID:         uuid.NewString(),
		Name:       name,
		MimeType:   mimeTypeFor(ext),
		Size:       fileInfo.Size(),
		UploadedAt: time.Now(),
	}

	switch category {
	case CategoryImage:
		if err := h.processImage(filePath, pf); err != nil {
			return nil, err
		}
	case CategoryText, CategoryCode:
		if err := h.processTextFile(filePath, ext, pf); err != nil {
			return nil, err
		}
	case CategoryDocument:
		// No extractor for binary documents; keep a placeholder descriptor
		pf.Content = fmt.Sprintf("[Document: %s (%s, %s)]", name, ext, FormatFileSize(pf.Size))
	}

	return pf, nil
}

// ProcessFiles ingests a batch sequentially. One file's failure is logged
// and skipped, never aborting the batch.
func (h *FileUploadHandler) ProcessFiles(filePaths []string) []*ProcessedFile {
	var processed []*ProcessedFile
	for _, path := range filePaths {
		pf, err := h.ProcessFile(path)
		if err != nil {
			if h.logger != nil {
				h.logger.Warn("skipping file %s: %v", path, err)
			}
			continue
		}
		processed = append(processed, pf)
	}
	return processed
}

// processTextFile reads a text/code file and fills content and metadata
func (h *FileUploadHandler) processTextFile(filePath, ext string, pf *ProcessedFile) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	pf.Content = string(data)

	switch ext {
	case ".csv":
		// Malformed CSV degrades to plain text
		if meta, err := parseCSVMetadata(data); err == nil {
			pf.CSV = meta
		}
	case ".json":
		// Valid JSON also carries the decoded object; anything else
		// silently stays plain text
		var parsed interface{}
		if err := json.Unmarshal(data, &parsed); err == nil {
			pf.Parsed = parsed
		}
	}

	return nil
}

// parseCSVMetadata extracts header list, row/column counts and a preview of
// at most 5 data rows
func parseCSVMetadata(data []byte) (*CSVMetadata, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	meta := &CSVMetadata{
		Headers: headers,
		Columns: len(headers),
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		meta.Rows++

		if len(meta.Preview) < 5 {
			row := make(map[string]string, len(headers))
			for i, value := range record {
				if i < len(headers) {
					row[headers[i]] = value
				}
			}
			meta.Preview = append(meta.Preview, row)
		}
	}

	return meta, nil
}

// processImage decodes an image, keeps its raw bytes for multimodal calls
// and produces a resized data-URI preview
func (h *FileUploadHandler) processImage(filePath string, pf *ProcessedFile) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	pf.ImageData = data

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := uint(bounds.Dx())
	height := uint(bounds.Dy())

	pf.Content = fmt.Sprintf("[Image: %s (%dx%d, %s)]", pf.Name, bounds.Dx(), bounds.Dy(), FormatFileSize(pf.Size))

	// Shrink for the preview while keeping aspect ratio
	if width > h.maxImageSize || height > h.maxImageSize {
		if width > height {
			img = resize.Resize(h.maxImageSize, 0, img, resize.Lanczos3)
		} else {
			img = resize.Resize(0, h.maxImageSize, img, resize.Lanczos3)
		}
	}

	var buf bytes.Buffer
	previewMime := pf.MimeType
	switch format {
	case "png":
		err = png.Encode(&buf, img)
		previewMime = "image/png"
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: h.imageQuality})
		previewMime = "image/jpeg"
	}
	if err != nil {
		return fmt.Errorf("failed to encode preview: %w", err)
	}

	pf.Preview = fmt.Sprintf("data:%s;base64,%s", previewMime, base64.StdEncoding.EncodeToString(buf.Bytes()))
	return nil
}

// mimeTypeFor returns the MIME type for an extension
func mimeTypeFor(ext string) string {
	if mimeType := mime.TypeByExtension(ext); mimeType != "" {
		if idx := strings.Index(mimeType, ";"); idx > 0 {
			return mimeType[:idx]
		}
		return mimeType
	}

	switch ext {
	case ".md":
		return "text/markdown"
	case ".csv":
		return "text/csv"
	case ".go", ".py", ".rs", ".rb", ".sh", ".sql", ".c", ".cpp", ".h", ".java", ".ts":
		return "text/plain"
	case ".yaml", ".yml":
		return "application/x-yaml"
	default:
		return "application/octet-stream"
	}
}

// FormatFileSize formats file size in human-readable format
func FormatFileSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
