// Package memory is an in-process domain.DocumentStore used in dev mode and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"rutas_admin/internal/domain"
)

type collection struct {
	order []string
	docs  map[string]domain.Document
}

type Store struct {
	mu    sync.RWMutex
	colls map[string]*collection
	now   func() time.Time
}

func New() *Store {
	return &Store{colls: map[string]*collection{}, now: time.Now}
}

func (s *Store) Get(ctx context.Context, coll, id string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.colls[coll]
	if !ok {
		return domain.Document{}, domain.ErrNotFound
	}
	d, ok := c.docs[id]
	if !ok {
		return domain.Document{}, domain.ErrNotFound
	}
	return copyDoc(d), nil
}

func (s *Store) List(ctx context.Context, coll string) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.colls[coll]
	if !ok {
		return nil, nil
	}
	out := make([]domain.Document, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, copyDoc(c.docs[id]))
	}
	return out, nil
}

func (s *Store) FindBy(ctx context.Context, coll, field, value string) ([]domain.Document, error) {
	all, err := s.List(ctx, coll)
	if err != nil {
		return nil, err
	}
	var out []domain.Document
	for _, d := range all {
		var m map[string]any
		if err := json.Unmarshal(d.Data, &m); err != nil {
			continue
		}
		if v, ok := m[field].(string); ok && v == value {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) Put(ctx context.Context, coll, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.colls[coll]
	if !ok {
		c = &collection{docs: map[string]domain.Document{}}
		s.colls[coll] = c
	}
	if _, exists := c.docs[id]; !exists {
		c.order = append(c.order, id)
	}
	c.docs[id] = domain.Document{ID: id, Data: append([]byte(nil), data...), UpdatedAt: s.now()}
	return nil
}

func (s *Store) SetIfEmpty(ctx context.Context, coll, id, field, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.colls[coll]
	if !ok {
		return false, domain.ErrNotFound
	}
	d, ok := c.docs[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	var m map[string]any
	if err := json.Unmarshal(d.Data, &m); err != nil {
		return false, err
	}
	if cur, _ := m[field].(string); cur != "" {
		return false, nil
	}
	m[field] = value
	b, err := json.Marshal(m)
	if err != nil {
		return false, err
	}
	c.docs[id] = domain.Document{ID: id, Data: b, UpdatedAt: s.now()}
	return true, nil
}

func (s *Store) Delete(ctx context.Context, coll, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.colls[coll]
	if !ok {
		return domain.ErrNotFound
	}
	if _, ok := c.docs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(c.docs, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func copyDoc(d domain.Document) domain.Document {
	d.Data = append([]byte(nil), d.Data...)
	return d
}
