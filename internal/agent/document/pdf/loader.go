package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"

	"github.com/feichai0017/pdf-rasterizer/internal/agent/document"
	"github.com/feichai0017/pdf-rasterizer/internal/models"
	"github.com/feichai0017/pdf-rasterizer/pkg/logger"
)

var (
	ErrEmptyDocument  = errors.New("document has no pages")
	ErrDocumentClosed = errors.New("document is closed")
)

// Loader opens PDFs with MuPDF and reads the Info dictionary with ledongthuc/pdf.
type Loader struct {
	logger logger.Logger
}

func NewLoader(log logger.Logger) *Loader {
	return &Loader{logger: log.Named("pdf-loader")}
}

func (l *Loader) Load(ctx context.Context, data []byte) (*document.LoadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}

	pages := doc.NumPage()
	if pages < 1 {
		doc.Close()
		return nil, ErrEmptyDocument
	}

	info := models.DocumentMetadata{
		SizeBytes:  int64(len(data)),
		TotalPages: pages,
	}

	title, author, err := readInfo(data)
	if err != nil {
		// MuPDF already accepted the file, the Info dictionary is optional
		l.logger.Debug("Failed to read document info", logger.Error(err))
		meta := doc.Metadata()
		title, author = meta["title"], meta["author"]
	}
	info.Title = strings.TrimSpace(title)
	info.Author = strings.TrimSpace(author)

	return &document.LoadResult{
		Document: &fitzDocument{doc: doc, pages: pages},
		Info:     info,
	}, nil
}

func readInfo(data []byte) (title, author string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed info dictionary: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", "", err
	}

	trailer := reader.Trailer()
	if trailer.IsNull() {
		return "", "", nil
	}
	info := trailer.Key("Info")
	if info.IsNull() {
		return "", "", nil
	}
	if v := info.Key("Title"); !v.IsNull() {
		title = v.Text()
	}
	if v := info.Key("Author"); !v.IsNull() {
		author = v.Text()
	}
	return title, author, nil
}

// fitzDocument serialises access to the MuPDF handle, which is not safe for concurrent use.
type fitzDocument struct {
	mu     sync.Mutex
	doc    *fitz.Document
	pages  int
	closed bool
}

func (d *fitzDocument) NumPages() int {
	return d.pages
}

func (d *fitzDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.doc.Close()
}
