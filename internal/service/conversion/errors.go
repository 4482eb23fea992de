package conversion

import (
	"errors"
	"fmt"

	"github.com/feichai0017/pdf-rasterizer/internal/store"
)

// Messages shown on a project in the error state.
const (
	MessageLoadFailed          = "Failed to load PDF."
	MessageConversionFailed    = "Conversion failed."
	MessageConversionCancelled = "Conversion cancelled."
)

var (
	ErrProjectNotFound      = store.ErrProjectNotFound
	ErrProjectNotReady      = errors.New("project is not loaded")
	ErrConversionInProgress = errors.New("conversion already in progress")
	ErrSweepInProgress      = errors.New("convert all already in progress")
	ErrNoSweep              = errors.New("no convert all in progress")
	ErrNoBatch              = errors.New("no conversion in progress")
	ErrNoTargetPages        = errors.New("no target pages")
	ErrProjectRemoved       = errors.New("project removed during conversion")
	ErrBatchCancelled       = errors.New("conversion cancelled")
)

// LoadError means the document could not be opened or parsed.
type LoadError struct {
	ProjectID string
	Err       error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load project %s: %v", e.ProjectID, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// RenderError means a specific page could not be rasterized.
type RenderError struct {
	ProjectID  string
	PageNumber int
	Err        error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("failed to render page %d of project %s: %v", e.PageNumber, e.ProjectID, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}
