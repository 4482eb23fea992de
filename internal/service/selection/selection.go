package selection

import (
	"sort"

	"github.com/feichai0017/pdf-rasterizer/internal/models"
	"github.com/feichai0017/pdf-rasterizer/internal/pagerange"
	"github.com/feichai0017/pdf-rasterizer/internal/store"
	"github.com/feichai0017/pdf-rasterizer/pkg/logger"
)

// Manager tracks, per project, the pages marked for targeted conversion and export.
// Selection is independent of conversion status. Operations on unknown projects are no-ops
// and return false.
type Manager struct {
	store  *store.Store
	logger logger.Logger
}

func NewManager(s *store.Store, log logger.Logger) *Manager {
	return &Manager{
		store:  s,
		logger: log.Named("selection"),
	}
}

// Toggle flips membership of pageNumber. Pages outside 1..totalPages are ignored.
func (m *Manager) Toggle(projectID string, pageNumber int) ([]int, bool) {
	return m.apply(projectID, func(p *models.Project) {
		if pageNumber < 1 || pageNumber > p.Metadata.TotalPages {
			return
		}
		i := sort.SearchInts(p.SelectedPages, pageNumber)
		if i < len(p.SelectedPages) && p.SelectedPages[i] == pageNumber {
			p.SelectedPages = append(p.SelectedPages[:i], p.SelectedPages[i+1:]...)
			return
		}
		p.SelectedPages = append(p.SelectedPages, 0)
		copy(p.SelectedPages[i+1:], p.SelectedPages[i:])
		p.SelectedPages[i] = pageNumber
	})
}

// SelectAll selects 1..totalPages.
func (m *Manager) SelectAll(projectID string) ([]int, bool) {
	return m.apply(projectID, func(p *models.Project) {
		pages := make([]int, p.Metadata.TotalPages)
		for i := range pages {
			pages[i] = i + 1
		}
		p.SelectedPages = pages
	})
}

// SelectRange replaces the selection with the pages expr resolves to.
func (m *Manager) SelectRange(projectID, expr string) ([]int, bool) {
	return m.apply(projectID, func(p *models.Project) {
		p.SelectedPages = pagerange.Parse(expr, p.Metadata.TotalPages)
	})
}

// Clear empties the selection.
func (m *Manager) Clear(projectID string) ([]int, bool) {
	return m.apply(projectID, func(p *models.Project) {
		p.SelectedPages = []int{}
	})
}

// Selected returns the current selection.
func (m *Manager) Selected(projectID string) ([]int, bool) {
	p, ok := m.store.Get(projectID)
	if !ok {
		return nil, false
	}
	return p.SelectedPages, true
}

func (m *Manager) apply(projectID string, fn func(p *models.Project)) ([]int, bool) {
	p, err := m.store.Update(projectID, fn)
	if err != nil {
		m.logger.Debug("Selection change ignored",
			logger.String("projectId", projectID),
			logger.Error(err),
		)
		return nil, false
	}
	return p.SelectedPages, true
}
