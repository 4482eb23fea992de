// internal/utils/validator/document.go
package validator

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/feichai0017/pdf-rasterizer/pkg/logger"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrEmptyFile       = errors.New("file is empty")
	ErrMalformedPDF    = errors.New("malformed pdf")
	ErrTooManyPages    = errors.New("too many pages")
)

const pdfMIME = "application/pdf"

var disableConfigDir sync.Once

// DocumentValidator 文档验证器
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
	pdfcpu *model.Configuration
}

// ValidatorConfig 验证器配置
type ValidatorConfig struct {
	MaxFileSize       int64 // 0 means unlimited
	MaxPageCount      int   // 0 means unlimited
	ValidateStructure bool
}

// ValidationResult 验证结果
type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

// ValidationError 验证错误
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	err     error
}

// FileInfo 文件信息
type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Hash      string `json:"hash"`
}

// NewDocumentValidator 创建新的文档验证器
func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = &ValidatorConfig{
			MaxFileSize:       100 * 1024 * 1024,
			ValidateStructure: true,
		}
	}

	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	return &DocumentValidator{
		logger: log.Named("validator"),
		config: config,
		pdfcpu: conf,
	}
}

// Validate returns nil when the upload is a PDF the service accepts.
// The returned error wraps one of the package sentinels.
func (v *DocumentValidator) Validate(filename string, data []byte) error {
	result := v.ValidateUpload(filename, data)
	if result.IsValid {
		return nil
	}
	first := result.Errors[0]
	v.logger.Info("Upload rejected",
		logger.String("filename", filename),
		logger.String("code", first.Code),
		logger.String("mimeType", result.FileInfo.MimeType),
	)
	return fmt.Errorf("%s: %w", first.Message, first.err)
}

// ValidateUpload runs every check and collects the failures.
func (v *DocumentValidator) ValidateUpload(filename string, data []byte) *ValidationResult {
	hash := sha256.Sum256(data)
	result := &ValidationResult{
		IsValid: true,
		FileInfo: FileInfo{
			Filename:  filename,
			Size:      int64(len(data)),
			Extension: strings.ToLower(filepath.Ext(filename)),
			Hash:      hex.EncodeToString(hash[:]),
			MimeType:  mimetype.Detect(data).String(),
		},
	}

	if errs := v.performBasicValidation(result.FileInfo); len(errs) > 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, errs...)
		return result
	}

	if v.config.ValidateStructure {
		if errs := v.validatePDF(data); len(errs) > 0 {
			result.IsValid = false
			result.Errors = append(result.Errors, errs...)
		}
	}

	return result
}

// 基本验证
func (v *DocumentValidator) performBasicValidation(fileInfo FileInfo) []ValidationError {
	var errs []ValidationError

	if fileInfo.Size == 0 {
		return append(errs, ValidationError{
			Code:    "EMPTY_FILE",
			Message: "File is empty",
			Field:   "size",
			err:     ErrEmptyFile,
		})
	}

	// content decides, the extension is only informative
	if !mimetype.EqualsAny(fileInfo.MimeType, pdfMIME) {
		errs = append(errs, ValidationError{
			Code:    "INVALID_MIME_TYPE",
			Message: fmt.Sprintf("Content type %s is not a PDF", fileInfo.MimeType),
			Field:   "mimeType",
			err:     ErrUnsupportedType,
		})
	}

	if v.config.MaxFileSize > 0 && fileInfo.Size > v.config.MaxFileSize {
		errs = append(errs, ValidationError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
			Field:   "size",
			err:     ErrFileTooLarge,
		})
	}

	return errs
}

// PDF特定验证
func (v *DocumentValidator) validatePDF(data []byte) []ValidationError {
	if err := api.Validate(bytes.NewReader(data), v.pdfcpu); err != nil {
		return []ValidationError{{
			Code:    "MALFORMED_PDF",
			Message: fmt.Sprintf("PDF failed validation: %v", err),
			err:     ErrMalformedPDF,
		}}
	}

	if v.config.MaxPageCount > 0 {
		pages, err := api.PageCount(bytes.NewReader(data), v.pdfcpu)
		if err != nil {
			return []ValidationError{{
				Code:    "MALFORMED_PDF",
				Message: fmt.Sprintf("Failed to count pages: %v", err),
				err:     ErrMalformedPDF,
			}}
		}
		if pages > v.config.MaxPageCount {
			return []ValidationError{{
				Code:    "TOO_MANY_PAGES",
				Message: fmt.Sprintf("Document has %d pages, limit is %d", pages, v.config.MaxPageCount),
				Field:   "pages",
				err:     ErrTooManyPages,
			}}
		}
	}

	return nil
}
