package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/feichai0017/pdf-rasterizer/internal/models"
	"github.com/feichai0017/pdf-rasterizer/pkg/archive"
	"github.com/feichai0017/pdf-rasterizer/pkg/logger"
	"github.com/feichai0017/pdf-rasterizer/pkg/storage"
)

var (
	// ErrNothingToExport means the page set was empty and no archive was produced.
	ErrNothingToExport    = errors.New("nothing to export")
	ErrPageNotConverted   = errors.New("page not converted")
	ErrPublishingDisabled = errors.New("export publishing disabled")
)

type Config struct {
	DPI         int
	Format      string
	PaddedNames bool
	Prefix      string
}

// File is a named artifact ready to be handed to the caller.
type File struct {
	Filename    string
	ContentType string
	Data        []byte
	PageNumbers []int
}

type Service struct {
	storage storage.Storage
	config  *Config
	logger  logger.Logger
}

// NewService builds the packager. A nil storage disables Publish.
func NewService(st storage.Storage, cfg *Config, log logger.Logger) *Service {
	if cfg == nil {
		cfg = &Config{DPI: 300, Format: "png", PaddedNames: true}
	}
	return &Service{
		storage: st,
		config:  cfg,
		logger:  log.Named("export"),
	}
}

// Pages returns the converted pages an export would contain.
func Pages(p *models.Project, onlySelected bool) []models.ConvertedPage {
	if !onlySelected {
		return append([]models.ConvertedPage(nil), p.Pages...)
	}
	var pages []models.ConvertedPage
	for _, page := range p.Pages {
		if p.IsSelected(page.PageNumber) {
			pages = append(pages, page)
		}
	}
	return pages
}

// Pack bundles the converted pages of a project, or only its selected ones,
// into a zip archive under a single folder named after the document.
func (s *Service) Pack(p *models.Project, onlySelected bool) (*File, error) {
	pages := Pages(p, onlySelected)
	if len(pages) == 0 {
		s.logger.Debug("Export skipped, no pages",
			logger.String("projectId", p.ID),
			logger.Bool("onlySelected", onlySelected),
		)
		return nil, ErrNothingToExport
	}

	folder := FolderName(p.Metadata.Name)
	a := archive.New()
	if err := a.Folder(folder); err != nil {
		return nil, err
	}

	numbers := make([]int, 0, len(pages))
	for _, page := range pages {
		name := EntryName(page.PageNumber, p.Metadata.TotalPages, s.extension(page.Artifact), s.config.PaddedNames)
		if err := a.AddFile(path.Join(folder, name), page.Artifact.Data); err != nil {
			return nil, err
		}
		numbers = append(numbers, page.PageNumber)
	}

	data, err := a.Serialize()
	if err != nil {
		return nil, err
	}

	file := &File{
		Filename:    ArchiveName(p.Metadata.Name, s.config.DPI, onlySelected),
		ContentType: "application/zip",
		Data:        data,
		PageNumbers: numbers,
	}
	s.logger.Info("Export produced",
		logger.String("projectId", p.ID),
		logger.String("filename", file.Filename),
		logger.Int("pageCount", len(numbers)),
		logger.Int("bytes", len(data)),
	)
	return file, nil
}

// Download returns one converted page without archive wrapping.
func (s *Service) Download(p *models.Project, pageNumber int) (*File, error) {
	page, ok := p.Page(pageNumber)
	if !ok {
		return nil, ErrPageNotConverted
	}

	contentType := page.Artifact.ContentType
	if contentType == "" {
		contentType = "image/" + s.extension(page.Artifact)
	}
	return &File{
		Filename:    DownloadName(pageNumber, p.Metadata.TotalPages, s.config.DPI, s.extension(page.Artifact), s.config.PaddedNames),
		ContentType: contentType,
		Data:        page.Artifact.Data,
		PageNumbers: []int{pageNumber},
	}, nil
}

// Publish packs the project and stores the archive in object storage under
// prefix/projectID/archive name. The storage key is returned.
func (s *Service) Publish(ctx context.Context, p *models.Project, onlySelected bool) (string, error) {
	if s.storage == nil {
		return "", ErrPublishingDisabled
	}
	file, err := s.Pack(p, onlySelected)
	if err != nil {
		return "", err
	}

	key, err := s.storage.Store(ctx, bytes.NewReader(file.Data), path.Join(s.config.Prefix, p.ID, file.Filename))
	if err != nil {
		return "", fmt.Errorf("failed to publish export: %w", err)
	}

	s.logger.Info("Export published", logger.String("projectId", p.ID), logger.String("key", key))
	return key, nil
}

// Cleanup removes published archives older than retention.
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) error {
	if s.storage == nil {
		return ErrPublishingDisabled
	}
	threshold := time.Now().Add(-retention)
	if err := s.storage.CleanupBefore(ctx, threshold); err != nil {
		return fmt.Errorf("failed to cleanup storage: %w", err)
	}
	s.logger.Info("Completed exports cleanup", logger.Time("threshold", threshold))
	return nil
}

func (s *Service) extension(artifact models.PageArtifact) string {
	format := artifact.Format
	if format == "" {
		format = s.config.Format
	}
	if format == "" {
		format = "png"
	}
	return format
}
