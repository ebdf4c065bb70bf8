package concepts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when a concept ID does not match any stored concept.
var ErrNotFound = errors.New("concept not found")

// Concept is a named board with its constituent stocks.
type Concept struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	Stocks    []Stock    `json:"stocks"`
}

// Store persists concepts. Deleting is soft: deleted concepts can be
// restored until purged.
type Store interface {
	List() ([]Concept, error)
	Get(id string) (*Concept, error)
	Create(name string, stocks []Stock) (*Concept, error)
	UpdateStocks(id string, stocks []Stock) (*Concept, error)
	Delete(id string) error
	ListDeleted() ([]Concept, error)
	Restore(id string) (*Concept, error)
	Purge(id string) error
}

type storeData struct {
	Concepts        []Concept `json:"concepts"`
	DeletedConcepts []Concept `json:"deletedConcepts,omitempty"`
}

// FileStore keeps all concepts in a single JSON document.
type FileStore struct {
	path string
	now  func() time.Time

	mu sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store backed by path. The file is created on
// first access if it does not exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) read() (*storeData, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		empty := &storeData{Concepts: []Concept{}}
		if err := s.write(empty); err != nil {
			return nil, err
		}
		return empty, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading concept store: %w", err)
	}

	var d storeData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing concept store %s: %w", s.path, err)
	}
	if d.Concepts == nil {
		d.Concepts = []Concept{}
	}
	return &d, nil
}

// write replaces the store file atomically.
func (s *FileStore) write(d *storeData) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling concepts: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".concepts-*.json")
	if err != nil {
		return fmt.Errorf("writing concept store: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("writing concept store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing concept store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("writing concept store: %w", err)
	}
	return nil
}

// List returns all active concepts in creation order.
func (s *FileStore) List() ([]Concept, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.read()
	if err != nil {
		return nil, err
	}
	return d.Concepts, nil
}

// Get returns the active concept with the given ID.
func (s *FileStore) Get(id string) (*Concept, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.read()
	if err != nil {
		return nil, err
	}
	i := indexOf(d.Concepts, id)
	if i < 0 {
		return nil, ErrNotFound
	}
	return &d.Concepts[i], nil
}

// Create stores a new concept.
func (s *FileStore) Create(name string, stocks []Stock) (*Concept, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.read()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	c := Concept{
		ID:        s.nextID(d, now),
		Name:      name,
		CreatedAt: now,
		Stocks:    nonNil(stocks),
	}
	d.Concepts = append(d.Concepts, c)
	if err := s.write(d); err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateStocks replaces the constituents of an active concept.
func (s *FileStore) UpdateStocks(id string, stocks []Stock) (*Concept, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.read()
	if err != nil {
		return nil, err
	}
	i := indexOf(d.Concepts, id)
	if i < 0 {
		return nil, ErrNotFound
	}

	now := s.now().UTC()
	d.Concepts[i].Stocks = nonNil(stocks)
	d.Concepts[i].UpdatedAt = &now
	if err := s.write(d); err != nil {
		return nil, err
	}
	return &d.Concepts[i], nil
}

// Delete moves an active concept to the deleted list.
func (s *FileStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.read()
	if err != nil {
		return err
	}
	i := indexOf(d.Concepts, id)
	if i < 0 {
		return ErrNotFound
	}

	c := d.Concepts[i]
	now := s.now().UTC()
	c.DeletedAt = &now
	d.DeletedConcepts = append(d.DeletedConcepts, c)
	d.Concepts = slices.Delete(d.Concepts, i, i+1)
	return s.write(d)
}

// ListDeleted returns soft-deleted concepts.
func (s *FileStore) ListDeleted() ([]Concept, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.read()
	if err != nil {
		return nil, err
	}
	return nonNilConcepts(d.DeletedConcepts), nil
}

// Restore moves a deleted concept back to the active list.
func (s *FileStore) Restore(id string) (*Concept, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.read()
	if err != nil {
		return nil, err
	}
	i := indexOf(d.DeletedConcepts, id)
	if i < 0 {
		return nil, ErrNotFound
	}

	c := d.DeletedConcepts[i]
	c.DeletedAt = nil
	d.Concepts = append(d.Concepts, c)
	d.DeletedConcepts = slices.Delete(d.DeletedConcepts, i, i+1)
	if err := s.write(d); err != nil {
		return nil, err
	}
	return &c, nil
}

// Purge permanently removes a deleted concept.
func (s *FileStore) Purge(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.read()
	if err != nil {
		return err
	}
	i := indexOf(d.DeletedConcepts, id)
	if i < 0 {
		return ErrNotFound
	}
	d.DeletedConcepts = slices.Delete(d.DeletedConcepts, i, i+1)
	return s.write(d)
}

// nextID derives an ID from the creation time, bumping the millisecond
// count until it is unused by active and deleted concepts.
func (s *FileStore) nextID(d *storeData, now time.Time) string {
	ms := now.UnixMilli()
	for {
		id := "concept_" + strconv.FormatInt(ms, 10)
		if indexOf(d.Concepts, id) < 0 && indexOf(d.DeletedConcepts, id) < 0 {
			return id
		}
		ms++
	}
}

func indexOf(list []Concept, id string) int {
	return slices.IndexFunc(list, func(c Concept) bool { return c.ID == id })
}

func nonNil(stocks []Stock) []Stock {
	if stocks == nil {
		return []Stock{}
	}
	return stocks
}

func nonNilConcepts(list []Concept) []Concept {
	if list == nil {
		return []Concept{}
	}
	return list
}
