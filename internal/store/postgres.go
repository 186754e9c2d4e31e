package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/leadintake/internal/schema"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
}

// migration creates the leads table. Scalar fields are columns for sorting;
// the whole lead is kept as a JSONB document for reads and filtering.
const migration = `
CREATE TABLE IF NOT EXISTS leads (
	id          BIGSERIAL PRIMARY KEY,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	type        TEXT        NOT NULL,
	api_token   TEXT        NOT NULL,
	product     INTEGER     NOT NULL,
	stream      TEXT        NOT NULL,
	applied_at  TIMESTAMPTZ,
	document    JSONB       NOT NULL
);
CREATE INDEX IF NOT EXISTS leads_document_idx ON leads USING GIN (document jsonb_path_ops);
CREATE INDEX IF NOT EXISTS leads_applied_at_idx ON leads (applied_at);
`

const (
	insertLeadSQL = `
INSERT INTO leads (type, api_token, product, stream, applied_at, document)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at, document`

	selectLeadSQL = `SELECT id, created_at, document FROM leads`

	updateLeadSQL = `
UPDATE leads
SET type = $2, api_token = $3, product = $4, stream = $5, applied_at = $6, document = $7
WHERE id = $1
RETURNING id, created_at, document`

	deleteLeadSQL = `DELETE FROM leads WHERE id = $1`
)

// PostgresStore stores leads in PostgreSQL.
type PostgresStore struct {
	db DBTX
}

// NewPostgres creates a store on db.
func NewPostgres(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the leads table and its indexes if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, migration); err != nil {
		return wrapErr("migrate", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, lead *schema.Lead) (*schema.StoredLead, error) {
	args, err := leadArgs(lead)
	if err != nil {
		return nil, wrapErr("create", err)
	}
	stored, err := scanLead(s.db.QueryRow(ctx, insertLeadSQL, args...))
	if err != nil {
		return nil, wrapErr("create", err)
	}
	return stored, nil
}

// CreateMany inserts every lead in one transaction using a pgx batch.
// Any failing insert rolls the whole batch back.
func (s *PostgresStore) CreateMany(ctx context.Context, leads []*schema.Lead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, lead := range leads {
		args, err := leadArgs(lead)
		if err != nil {
			return 0, wrapErr("create many", err)
		}
		batch.Queue(insertLeadSQL, args...)
	}

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		for i := range leads {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("insert lead %d: %w", i+1, err)
			}
		}
		return results.Close()
	})
	if err != nil {
		return 0, wrapErr("create many", err)
	}
	return len(leads), nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (*schema.StoredLead, error) {
	stored, err := scanLead(s.db.QueryRow(ctx, selectLeadSQL+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("find by id", err)
	}
	return stored, nil
}

func (s *PostgresStore) FindMany(ctx context.Context, filter Filter) ([]*schema.StoredLead, error) {
	query, args, err := buildFindQuery(filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("find many", err)
	}
	defer rows.Close()

	var out []*schema.StoredLead
	for rows.Next() {
		stored, err := scanLead(rows)
		if err != nil {
			return nil, wrapErr("find many", err)
		}
		out = append(out, stored)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("find many", err)
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, id int64, lead *schema.Lead) (*schema.StoredLead, error) {
	args, err := leadArgs(lead)
	if err != nil {
		return nil, wrapErr("update", err)
	}
	stored, err := scanLead(s.db.QueryRow(ctx, updateLeadSQL, append([]any{id}, args...)...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("update", err)
	}
	return stored, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, deleteLeadSQL, id)
	if err != nil {
		return wrapErr("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// buildFindQuery renders the filter as SQL. Include and Distinct are
// ignored.
func buildFindQuery(filter Filter) (string, []any, error) {
	order, err := filter.ParseOrder()
	if err != nil {
		return "", nil, err
	}
	cursor, hasCursor, err := filter.ParseCursor()
	if err != nil {
		return "", nil, err
	}
	where, err := filter.ParseWhere()
	if err != nil {
		return "", nil, err
	}

	var (
		conds []string
		args  []any
	)
	if where != nil {
		args = append(args, string(filter.Where))
		conds = append(conds, fmt.Sprintf("document @> $%d::jsonb", len(args)))
	}
	if hasCursor {
		args = append(args, cursor)
		conds = append(conds, fmt.Sprintf("id >= $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString(selectLeadSQL)
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}

	b.WriteString(" ORDER BY ")
	for i, term := range order {
		if i > 0 {
			b.WriteString(", ")
		}
		// Column names come from the orderColumns allow-list.
		b.WriteString(term.Column)
		if term.Desc {
			b.WriteString(" DESC")
		}
	}
	if order[len(order)-1].Column != "id" {
		b.WriteString(", id")
	}

	if filter.Take != nil && *filter.Take >= 0 {
		args = append(args, *filter.Take)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if filter.Skip != nil && *filter.Skip > 0 {
		args = append(args, *filter.Skip)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args, nil
}

// leadArgs returns the column values for a lead, in insert order.
func leadArgs(lead *schema.Lead) ([]any, error) {
	doc, err := json.Marshal(lead)
	if err != nil {
		return nil, fmt.Errorf("encode lead document: %w", err)
	}
	var appliedAt *time.Time
	if lead.AppliedAt != nil {
		t := lead.AppliedAt.UTC()
		appliedAt = &t
	}
	return []any{lead.Type, lead.APIToken, lead.Product, lead.Stream, appliedAt, string(doc)}, nil
}

func scanLead(row pgx.Row) (*schema.StoredLead, error) {
	var (
		stored schema.StoredLead
		doc    []byte
	)
	if err := row.Scan(&stored.ID, &stored.CreatedAt, &doc); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(doc, &stored.Lead); err != nil {
		return nil, fmt.Errorf("decode lead document: %w", err)
	}
	stored.CreatedAt = stored.CreatedAt.UTC()
	return &stored, nil
}
