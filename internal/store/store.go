// Package store holds the authoritative in-memory collection of projects.
//
// Records are copied on the way in and on the way out, so a reader always
// observes a self-consistent project and never shares slices with a writer.
// Every mutation replaces the affected record in full under the write lock.
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/feichai0017/pdf-rasterizer/internal/models"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrDuplicateID     = errors.New("project id already exists")
)

// Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	projects map[string]*models.Project
	order    []string
	now      func() time.Time
}

func New() *Store {
	return &Store{
		projects: make(map[string]*models.Project),
		now:      time.Now,
	}
}

// Add inserts a new project at the end of the enumeration order.
func (s *Store) Add(p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[p.ID]; ok {
		return ErrDuplicateID
	}
	record := p.Clone()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	record.UpdatedAt = record.CreatedAt
	s.projects[p.ID] = record
	s.order = append(s.order, p.ID)
	return nil
}

// Get returns a copy of the project.
func (s *Store) Get(id string) (*models.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// List returns copies of all projects in insertion order.
func (s *Store) List() []*models.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.Project, 0, len(s.order))
	for _, id := range s.order {
		list = append(list, s.projects[id].Clone())
	}
	return list
}

// Len returns the number of projects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Update applies fn to a copy of the project and swaps the copy in.
// fn must not retain the pointer. The updated copy is returned.
// ErrProjectNotFound is returned when the project does not exist, in which
// case fn is not called.
func (s *Store) Update(id string, fn func(p *models.Project)) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	next := current.Clone()
	fn(next)
	next.ID = current.ID
	next.UpdatedAt = s.now()
	s.projects[id] = next
	return next.Clone(), nil
}

// Remove deletes the project and releases its source handle.
func (s *Store) Remove(id string) (*models.Project, error) {
	s.mu.Lock()
	p, ok := s.projects[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrProjectNotFound
	}
	delete(s.projects, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if p.Source != nil {
		if err := p.Source.Close(); err != nil {
			return p, err
		}
	}
	return p, nil
}
