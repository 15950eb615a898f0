package app

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"rutas_admin/internal/domain"
)

// collection is a typed view over one document-store collection.
type collection[T any] struct {
	store domain.DocumentStore
	name  string
}

func newCollection[T any](s domain.DocumentStore, name string) collection[T] {
	return collection[T]{store: s, name: name}
}

func (c collection[T]) get(ctx context.Context, id string) (T, error) {
	var v T
	d, err := c.store.Get(ctx, c.name, id)
	if err != nil {
		return v, fmt.Errorf("get %s/%s: %w", c.name, id, err)
	}
	if err := json.Unmarshal(d.Data, &v); err != nil {
		return v, fmt.Errorf("decode %s/%s: %w", c.name, id, err)
	}
	return v, nil
}

func (c collection[T]) list(ctx context.Context) ([]T, error) {
	docs, err := c.store.List(ctx, c.name)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.name, err)
	}
	return decodeAll[T](c.name, docs)
}

func (c collection[T]) findBy(ctx context.Context, field, value string) ([]T, error) {
	docs, err := c.store.FindBy(ctx, c.name, field, value)
	if err != nil {
		return nil, fmt.Errorf("find %s by %s: %w", c.name, field, err)
	}
	return decodeAll[T](c.name, docs)
}

// put stores v and returns the encoded body for change events.
func (c collection[T]) put(ctx context.Context, id string, v T) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", c.name, id, err)
	}
	if err := c.store.Put(ctx, c.name, id, b); err != nil {
		return nil, fmt.Errorf("put %s/%s: %w", c.name, id, err)
	}
	return b, nil
}

func (c collection[T]) setIfEmpty(ctx context.Context, id, field, value string) (bool, error) {
	ok, err := c.store.SetIfEmpty(ctx, c.name, id, field, value)
	if err != nil {
		return false, fmt.Errorf("set %s/%s.%s: %w", c.name, id, field, err)
	}
	return ok, nil
}

func (c collection[T]) delete(ctx context.Context, id string) error {
	if err := c.store.Delete(ctx, c.name, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", c.name, id, err)
	}
	return nil
}

func decodeAll[T any](name string, docs []domain.Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := json.Unmarshal(d.Data, &v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", name, d.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}
