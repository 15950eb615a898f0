package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Collection names in the document store.
const (
	CollRoutes     = "rutas"
	CollAlerts     = "alertas"
	CollHotels     = "hoteles"
	CollArrows     = "flechas"
	CollUsers      = "usuarios"
	CollUserHotels = "hotelesUsuario"
	CollConfig     = "config"
)

// ConfigDocID is the fixed document holding AppConfig.
const ConfigDocID = "app"

// Document is one raw JSON document of a collection.
type Document struct {
	ID        string
	Data      []byte
	UpdatedAt time.Time
}

type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	List(ctx context.Context, collection string) ([]Document, error)
	// FindBy returns documents whose top-level field equals value.
	FindBy(ctx context.Context, collection, field, value string) ([]Document, error)
	Put(ctx context.Context, collection, id string, data []byte) error
	// SetIfEmpty sets a top-level string field only while it is absent or
	// empty, leaving the rest of the document alone. It reports whether the
	// write landed; a missing document is ErrNotFound.
	SetIfEmpty(ctx context.Context, collection, id, field, value string) (bool, error)
	Delete(ctx context.Context, collection, id string) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

type SessionStore interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) (int, error)
}

// Change operations carried by ChangeEvent.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// ChangeEvent is what real-time listeners receive after a write.
type ChangeEvent struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Op         string          `json:"op"`
	Data       json.RawMessage `json:"data,omitempty"`
	At         time.Time       `json:"at"`
}

type ChangePublisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

type ChangeSubscriber interface {
	// Subscribe delivers events until ctx is done.
	Subscribe(ctx context.Context, fn func(ChangeEvent)) error
}

// RemoteAPI is the driver client's view of the three public endpoints.
type RemoteAPI interface {
	DataVersion(ctx context.Context) (string, error)
	RoutesAlerts(ctx context.Context) (RoutesAlertsResponse, error)
	// Hotels returns ErrNotModified when ifNoneMatch is still current.
	Hotels(ctx context.Context, userID, ifNoneMatch string) (HotelsResponse, error)
}

// LocalStore persists synced data on the driver device.
type LocalStore interface {
	Load(ctx context.Context, key string, dst any) (bool, error)
	Save(ctx context.Context, key string, v any) error
}
