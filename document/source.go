package document

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// StringSource is an in-memory Source keyed by location.
type StringSource struct {
	mu      sync.RWMutex
	content map[string]string
}

// NewStringSource creates a StringSource holding content.
func NewStringSource(content map[string]string) *StringSource {
	s := &StringSource{content: make(map[string]string, len(content))}
	for k, v := range content {
		s.content[k] = v
	}
	return s
}

// Put stores text at location.
func (s *StringSource) Put(location, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content[location] = text
}

// Load returns the text stored at location.
func (s *StringSource) Load(_ context.Context, location string) ([]byte, error) {
	if err := CheckLocation(location); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.content[location]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
	}
	return []byte(text), nil
}

// List returns the stored locations starting with prefix, sorted.
func (s *StringSource) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var locations []string
	for k := range s.content {
		if strings.HasPrefix(k, prefix) {
			locations = append(locations, k)
		}
	}
	slices.Sort(locations)
	return locations, nil
}

var (
	_ Source = (*StringSource)(nil)
	_ Lister = (*StringSource)(nil)
)
