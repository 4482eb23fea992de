package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-rasterizer/internal/models"
	"github.com/feichai0017/pdf-rasterizer/pkg/logger"
)

func TestPageStem(t *testing.T) {
	tests := []struct {
		page, total int
		padded      bool
		want        string
	}{
		{4, 137, true, "Page_004"},
		{4, 137, false, "page_4"},
		{12, 12, true, "Page_12"},
		{1, 9, true, "Page_1"},
		{7, 0, true, "Page_007"},
		{1000, 1000, true, "Page_1000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PageStem(tt.page, tt.total, tt.padded))
	}
}

func TestNames(t *testing.T) {
	assert.Equal(t, "Report", BaseName("Report.PDF"))
	assert.Equal(t, "scan.tiff", BaseName("scan.tiff"))
	assert.Equal(t, "Report_images", FolderName("Report.pdf"))
	assert.Equal(t, "Report_300dpi.zip", ArchiveName("Report.pdf", 300, false))
	assert.Equal(t, "Report_selection_150dpi.zip", ArchiveName("Report.pdf", 150, true))
	assert.Equal(t, "Page_004.png", EntryName(4, 137, "png", true))
	assert.Equal(t, "Page_004_300dpi.jpeg", DownloadName(4, 137, 300, "jpeg", true))
	assert.Equal(t, "page_4_72dpi.png", DownloadName(4, 137, 72, "png", false))
}

func project(total int, converted []int, selected []int) *models.Project {
	p := &models.Project{
		ID:            "p1",
		Metadata:      models.DocumentMetadata{Name: "Annual Report.pdf", TotalPages: total},
		SelectedPages: selected,
	}
	for _, n := range converted {
		p.MergePage(models.ConvertedPage{PageNumber: n, Artifact: models.PageArtifact{
			Format:      "png",
			ContentType: "image/png",
			Data:        []byte(strings.Repeat("x", n)),
		}})
	}
	return p
}

func entries(t *testing.T, data []byte) []string {
	t.Helper()
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	for _, f := range r.File {
		if !strings.HasSuffix(f.Name, "/") {
			names = append(names, f.Name)
		}
	}
	return names
}

func TestPackSelectedIntersection(t *testing.T) {
	svc := NewService(nil, &Config{DPI: 300, Format: "png", PaddedNames: true}, logger.NewTestLogger())
	p := project(137, []int{1, 2, 3, 4, 5}, []int{2, 5, 90})

	file, err := svc.Pack(p, true)
	require.NoError(t, err)
	assert.Equal(t, "Annual Report_selection_300dpi.zip", file.Filename)
	assert.Equal(t, []int{2, 5}, file.PageNumbers)
	assert.Equal(t, []string{
		"Annual Report_images/Page_002.png",
		"Annual Report_images/Page_005.png",
	}, entries(t, file.Data))
}

func TestPackAllUnpadded(t *testing.T) {
	svc := NewService(nil, &Config{DPI: 150, Format: "png"}, logger.NewTestLogger())
	p := project(10, []int{3, 1, 10}, nil)

	file, err := svc.Pack(p, false)
	require.NoError(t, err)
	assert.Equal(t, "Annual Report_150dpi.zip", file.Filename)
	assert.Equal(t, []string{
		"Annual Report_images/page_1.png",
		"Annual Report_images/page_3.png",
		"Annual Report_images/page_10.png",
	}, entries(t, file.Data))
}

func TestPackIsStable(t *testing.T) {
	svc := NewService(nil, nil, logger.NewTestLogger())
	first, err := svc.Pack(project(5, []int{1, 2}, nil), false)
	require.NoError(t, err)
	second, err := svc.Pack(project(5, []int{1, 2}, nil), false)
	require.NoError(t, err)
	assert.Equal(t, first.Data, second.Data)
}

func TestPackNothingToExport(t *testing.T) {
	svc := NewService(nil, nil, logger.NewTestLogger())

	_, err := svc.Pack(project(5, nil, nil), false)
	assert.ErrorIs(t, err, ErrNothingToExport)

	_, err = svc.Pack(project(5, []int{1, 2}, []int{4}), true)
	assert.ErrorIs(t, err, ErrNothingToExport)
}

func TestDownload(t *testing.T) {
	svc := NewService(nil, &Config{DPI: 300, Format: "png", PaddedNames: true}, logger.NewTestLogger())
	p := project(137, []int{4}, nil)

	file, err := svc.Download(p, 4)
	require.NoError(t, err)
	assert.Equal(t, "Page_004_300dpi.png", file.Filename)
	assert.Equal(t, "image/png", file.ContentType)
	assert.Equal(t, []byte("xxxx"), file.Data)

	_, err = svc.Download(p, 5)
	assert.ErrorIs(t, err, ErrPageNotConverted)
}

type memoryStorage struct {
	objects map[string][]byte
	cleaned time.Time
	err     error
}

func (m *memoryStorage) Store(ctx context.Context, r io.Reader, key string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.objects[key] = data
	return key, nil
}

func (m *memoryStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.objects[key])), nil
}

func (m *memoryStorage) Delete(ctx context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memoryStorage) CleanupBefore(ctx context.Context, threshold time.Time) error {
	m.cleaned = threshold
	return nil
}

func TestPublish(t *testing.T) {
	st := &memoryStorage{objects: map[string][]byte{}}
	svc := NewService(st, &Config{DPI: 300, Format: "png", PaddedNames: true, Prefix: "exports"}, logger.NewTestLogger())

	key, err := svc.Publish(context.Background(), project(3, []int{1}, nil), false)
	require.NoError(t, err)
	assert.Equal(t, "exports/p1/Annual Report_300dpi.zip", key)
	assert.NotEmpty(t, st.objects[key])

	st.err = errors.New("bucket gone")
	_, err = svc.Publish(context.Background(), project(3, []int{1}, nil), false)
	assert.ErrorContains(t, err, "bucket gone")

	require.NoError(t, svc.Cleanup(context.Background(), time.Hour))
	assert.WithinDuration(t, time.Now().Add(-time.Hour), st.cleaned, time.Minute)
}

func TestPublishDisabled(t *testing.T) {
	svc := NewService(nil, nil, logger.NewTestLogger())
	_, err := svc.Publish(context.Background(), project(3, []int{1}, nil), false)
	assert.ErrorIs(t, err, ErrPublishingDisabled)
	assert.ErrorIs(t, svc.Cleanup(context.Background(), time.Hour), ErrPublishingDisabled)
}
