// Package store persists leads.
//
// Store is the single storage contract used by the ingest pipeline and the
// HTTP layer. PostgresStore is the production implementation; MemoryStore
// backs tests and dry runs.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JonMunkholm/leadintake/internal/schema"
)

//go:generate mockgen -source=store.go -destination=mocks/store_mock.go -package=mocks Store

// ErrNotFound is returned by Update and Delete when no lead has the id.
var ErrNotFound = errors.New("lead not found")

// Store is the persistence contract for leads.
type Store interface {
	// Create stores one lead and returns it with its assigned id.
	Create(ctx context.Context, lead *schema.Lead) (*schema.StoredLead, error)

	// CreateMany stores all leads atomically: either every lead is stored
	// or none is. Returns the number stored.
	CreateMany(ctx context.Context, leads []*schema.Lead) (int, error)

	// FindByID returns nil, nil when no lead has the id.
	FindByID(ctx context.Context, id int64) (*schema.StoredLead, error)

	FindMany(ctx context.Context, filter Filter) ([]*schema.StoredLead, error)

	Update(ctx context.Context, id int64, lead *schema.Lead) (*schema.StoredLead, error)

	Delete(ctx context.Context, id int64) error
}

// StorageError wraps any failure of the storage backend.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func wrapErr(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// InvalidFilterError reports filter criteria the store cannot apply.
type InvalidFilterError struct {
	Field  string
	Reason string
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("invalid filter %s: %s", e.Field, e.Reason)
}

// Filter holds query criteria passed through from the API.
//
// Where is a JSON object matched by containment against the stored lead
// document. Cursor is {"id": n} and starts the page at that id. Order is
// {"<column>": "asc"|"desc"} or a list of such objects. Include and
// Distinct are accepted for compatibility and ignored.
type Filter struct {
	Take     *int
	Skip     *int
	Where    json.RawMessage
	Cursor   json.RawMessage
	Include  json.RawMessage
	Order    json.RawMessage
	Distinct []string
}

// OrderTerm is one parsed sort key.
type OrderTerm struct {
	Column string
	Desc   bool
}

// orderColumns maps sortable field names to table columns.
var orderColumns = map[string]string{
	"id":         "id",
	"created_at": "created_at",
	"applied_at": "applied_at",
	"product":    "product",
	"stream":     "stream",
	"type":       "type",
}

// ParseOrder decodes the Order criteria. An empty Order sorts by id
// ascending.
func (f Filter) ParseOrder() ([]OrderTerm, error) {
	if len(f.Order) == 0 || string(f.Order) == "null" {
		return []OrderTerm{{Column: "id"}}, nil
	}

	var objs []map[string]string
	if err := json.Unmarshal(f.Order, &objs); err != nil {
		var one map[string]string
		if err := json.Unmarshal(f.Order, &one); err != nil {
			return nil, &InvalidFilterError{Field: "order", Reason: "must be an object or a list of objects"}
		}
		objs = []map[string]string{one}
	}

	var terms []OrderTerm
	for _, obj := range objs {
		if len(obj) != 1 {
			return nil, &InvalidFilterError{Field: "order", Reason: "each entry must name exactly one field"}
		}
		for field, dir := range obj {
			col, ok := orderColumns[field]
			if !ok {
				return nil, &InvalidFilterError{Field: "order", Reason: fmt.Sprintf("cannot sort by %q", field)}
			}
			switch dir {
			case "asc", "":
				terms = append(terms, OrderTerm{Column: col})
			case "desc":
				terms = append(terms, OrderTerm{Column: col, Desc: true})
			default:
				return nil, &InvalidFilterError{Field: "order", Reason: fmt.Sprintf("direction %q must be asc or desc", dir)}
			}
		}
	}
	if len(terms) == 0 {
		terms = []OrderTerm{{Column: "id"}}
	}
	return terms, nil
}

// ParseCursor returns the id the page starts at, if a cursor is set.
func (f Filter) ParseCursor() (int64, bool, error) {
	if len(f.Cursor) == 0 || string(f.Cursor) == "null" {
		return 0, false, nil
	}
	var c struct {
		ID *int64 `json:"id"`
	}
	if err := json.Unmarshal(f.Cursor, &c); err != nil || c.ID == nil {
		return 0, false, &InvalidFilterError{Field: "cursor", Reason: `must be {"id": <number>}`}
	}
	return *c.ID, true, nil
}

// ParseWhere returns the Where criteria as a JSON object, or nil.
func (f Filter) ParseWhere() (map[string]any, error) {
	if len(f.Where) == 0 || string(f.Where) == "null" {
		return nil, nil
	}
	var where map[string]any
	if err := json.Unmarshal(f.Where, &where); err != nil {
		return nil, &InvalidFilterError{Field: "where", Reason: "must be a JSON object"}
	}
	return where, nil
}
