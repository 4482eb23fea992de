package models

import (
	"sort"
	"time"
)

// ConversionStatus 项目转换状态
type ConversionStatus string

const (
	StatusLoading    ConversionStatus = "loading"
	StatusIdle       ConversionStatus = "idle"
	StatusConverting ConversionStatus = "converting"
	StatusCompleted  ConversionStatus = "completed"
	StatusError      ConversionStatus = "error"
)

// DocumentMetadata describes the uploaded source document. TotalPages is 0 until loading completes.
type DocumentMetadata struct {
	Name       string `json:"name"`
	SizeBytes  int64  `json:"sizeBytes"`
	TotalPages int    `json:"totalPages"`
	Title      string `json:"title,omitempty"`
	Author     string `json:"author,omitempty"`
}

// PageArtifact is the rendered raster output for one page in its encoded form.
type PageArtifact struct {
	Format      string `json:"format"`
	ContentType string `json:"contentType"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Data        []byte `json:"-"`
}

// ConvertedPage is immutable once created.
type ConvertedPage struct {
	PageNumber int          `json:"pageNumber"`
	Artifact   PageArtifact `json:"artifact"`
}

// AnalysisResult 内容分析结果
type AnalysisResult struct {
	Title      string    `json:"title"`
	Summary    string    `json:"summary"`
	KeyPoints  []string  `json:"keyPoints"`
	Provider   string    `json:"provider"`
	AnalyzedAt time.Time `json:"analyzedAt"`
}

// SourceHandle is the opened document owned by the rendering collaborator.
type SourceHandle interface {
	NumPages() int
	Close() error
}

// Project is one ingested document and all of its derived conversion state.
type Project struct {
	ID            string           `json:"id"`
	Source        SourceHandle     `json:"-"`
	Metadata      DocumentMetadata `json:"metadata"`
	Status        ConversionStatus `json:"status"`
	Pages         []ConvertedPage  `json:"pages"`
	SelectedPages []int            `json:"selectedPages"`
	Progress      int              `json:"progress"`
	Analysis      *AnalysisResult  `json:"analysis,omitempty"`
	ErrorMessage  string           `json:"errorMessage,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// Clone returns a copy that shares no mutable slices with p.
// Artifact bytes are shared since pages are never modified after creation.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Pages = append([]ConvertedPage(nil), p.Pages...)
	clone.SelectedPages = append([]int(nil), p.SelectedPages...)
	if p.Analysis != nil {
		analysis := *p.Analysis
		analysis.KeyPoints = append([]string(nil), p.Analysis.KeyPoints...)
		clone.Analysis = &analysis
	}
	return &clone
}

// HasPage reports whether pageNumber has already been converted.
func (p *Project) HasPage(pageNumber int) bool {
	_, ok := p.Page(pageNumber)
	return ok
}

// Page returns the converted page with the given number.
func (p *Project) Page(pageNumber int) (ConvertedPage, bool) {
	i := sort.Search(len(p.Pages), func(i int) bool { return p.Pages[i].PageNumber >= pageNumber })
	if i < len(p.Pages) && p.Pages[i].PageNumber == pageNumber {
		return p.Pages[i], true
	}
	return ConvertedPage{}, false
}

// MergePage inserts page keeping ascending order. An existing entry for the same
// page number wins and false is returned.
func (p *Project) MergePage(page ConvertedPage) bool {
	i := sort.Search(len(p.Pages), func(i int) bool { return p.Pages[i].PageNumber >= page.PageNumber })
	if i < len(p.Pages) && p.Pages[i].PageNumber == page.PageNumber {
		return false
	}
	p.Pages = append(p.Pages, ConvertedPage{})
	copy(p.Pages[i+1:], p.Pages[i:])
	p.Pages[i] = page
	return true
}

// PageNumbers lists converted page numbers in ascending order.
func (p *Project) PageNumbers() []int {
	numbers := make([]int, len(p.Pages))
	for i, page := range p.Pages {
		numbers[i] = page.PageNumber
	}
	return numbers
}

// IsSelected reports whether pageNumber is in the selection.
func (p *Project) IsSelected(pageNumber int) bool {
	i := sort.SearchInts(p.SelectedPages, pageNumber)
	return i < len(p.SelectedPages) && p.SelectedPages[i] == pageNumber
}

// CanConvert reports whether a conversion request may be accepted in the current status.
func (s ConversionStatus) CanConvert() bool {
	switch s {
	case StatusIdle, StatusCompleted, StatusError:
		return true
	default:
		return false
	}
}
