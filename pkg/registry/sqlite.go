package registry

import (
	"context"
	"database/sql"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/battmeter/battmeter/pkg/store"
	"github.com/battmeter/battmeter/pkg/widget"
)

const schema = `
CREATE TABLE IF NOT EXISTS widgets (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	placed_at INTEGER NOT NULL
);
`

var _ Registry = &SQLite{}

// SQLite is a Registry persisted next to the widget state.
type SQLite struct {
	db     *sql.DB
	states store.Store
}

// NewSQLite creates the widgets table in db if needed.
func NewSQLite(db *sql.DB, states store.Store) (*SQLite, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to init widgets schema")
	}
	return &SQLite{db: db, states: states}, nil
}

func (r *SQLite) Place(ctx context.Context, name string) (widget.Info, error) {
	info := widget.Info{ID: newID(), Name: name, PlacedAt: time.Now().Round(0)}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO widgets (id, name, placed_at) VALUES (?, ?, ?)",
		string(info.ID), info.Name, info.PlacedAt.UnixMilli(),
	)
	if err != nil {
		return widget.Info{}, pkgerrors.Wrapf(err, "failed to place widget %q", name)
	}
	// Keep the precision that is actually persisted.
	info.PlacedAt = time.UnixMilli(info.PlacedAt.UnixMilli())
	return info, nil
}

func (r *SQLite) Remove(ctx context.Context, id widget.ID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM widgets WHERE id = ?", string(id))
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to remove widget %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to remove widget %s", id)
	}
	if n == 0 {
		return ErrNotFound
	}
	if r.states != nil {
		return r.states.Delete(ctx, id)
	}
	return nil
}

func (r *SQLite) Get(ctx context.Context, id widget.ID) (widget.Info, error) {
	var (
		name     string
		placedAt int64
	)
	err := r.db.QueryRowContext(ctx, "SELECT name, placed_at FROM widgets WHERE id = ?", string(id)).
		Scan(&name, &placedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return widget.Info{}, ErrNotFound
	}
	if err != nil {
		return widget.Info{}, pkgerrors.Wrapf(err, "failed to get widget %s", id)
	}
	return widget.Info{ID: id, Name: name, PlacedAt: time.UnixMilli(placedAt)}, nil
}

func (r *SQLite) List(ctx context.Context) ([]widget.Info, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name, placed_at FROM widgets ORDER BY placed_at, id")
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list widgets")
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logrus.Warnf("failed to close widget rows: %v", err)
		}
	}()

	var out []widget.Info
	for rows.Next() {
		var (
			id, name string
			placedAt int64
		)
		if err := rows.Scan(&id, &name, &placedAt); err != nil {
			return nil, pkgerrors.Wrap(err, "failed to scan widget")
		}
		out = append(out, widget.Info{ID: widget.ID(id), Name: name, PlacedAt: time.UnixMilli(placedAt)})
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list widgets")
	}
	return out, nil
}

func (r *SQLite) ActiveIDs(ctx context.Context) ([]widget.ID, error) {
	infos, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	return ids(infos), nil
}
