package survey

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Catalog is a thread-safe lookup of survey metadata by id.
type Catalog struct {
	mu      sync.RWMutex
	surveys map[string]Survey
}

// NewCatalog creates a catalog holding the given surveys.
func NewCatalog(surveys ...Survey) *Catalog {
	c := &Catalog{surveys: make(map[string]Survey, len(surveys))}
	for _, s := range surveys {
		c.surveys[s.ID] = s
	}
	return c
}

// Get returns the survey with the given id.
func (c *Catalog) Get(id string) (Survey, bool) {
	if c == nil {
		return Survey{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.surveys[id]
	return s, ok
}

// List returns all surveys sorted by id.
func (c *Catalog) List() []Survey {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Survey, 0, len(c.surveys))
	for _, s := range c.surveys {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Len returns the number of surveys in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.surveys)
}

// Replace swaps the catalog contents atomically.
func (c *Catalog) Replace(surveys []Survey) {
	next := make(map[string]Survey, len(surveys))
	for _, s := range surveys {
		next[s.ID] = s
	}
	c.mu.Lock()
	c.surveys = next
	c.mu.Unlock()
}

type catalogFile struct {
	Surveys []Survey `yaml:"surveys"`
}

// LoadFile reads a YAML catalog. A missing file yields an empty catalog.
func LoadFile(path string) (*Catalog, error) {
	surveys, err := readCatalogFile(path)
	if err != nil {
		return nil, err
	}
	return NewCatalog(surveys...), nil
}

func readCatalogFile(path string) ([]Survey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates YAML catalog data.
func ParseCatalog(data []byte) ([]Survey, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	seen := make(map[string]bool, len(f.Surveys))
	for i, s := range f.Surveys {
		if s.ID == "" {
			return nil, fmt.Errorf("catalog entry %d: missing id", i)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("catalog entry %d: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
		if s.QuestionCount < 0 {
			return nil, fmt.Errorf("survey %q: question_count must not be negative", s.ID)
		}
		if !finite(s.SecondsPerQuestion) || s.SecondsPerQuestion < 0 {
			return nil, fmt.Errorf("survey %q: seconds_per_question must not be negative", s.ID)
		}
		if b := s.Boundary; b != nil {
			if !finite(b.RadiusKm) || b.RadiusKm <= 0 {
				return nil, fmt.Errorf("survey %q: boundary radius_km must be positive", s.ID)
			}
			if !finite(b.Center.Latitude) || !finite(b.Center.Longitude) {
				return nil, fmt.Errorf("survey %q: boundary center must be a number", s.ID)
			}
			if b.Center.Latitude < -90 || b.Center.Latitude > 90 || b.Center.Longitude < -180 || b.Center.Longitude > 180 {
				return nil, fmt.Errorf("survey %q: boundary center out of range", s.ID)
			}
		}
	}
	return f.Surveys, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
