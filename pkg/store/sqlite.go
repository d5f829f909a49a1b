package store

import (
	"context"
	"database/sql"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/battmeter/battmeter/pkg/widget"
)

const schema = `
CREATE TABLE IF NOT EXISTS widget_state (
	widget_id TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (widget_id, key)
);
`

var _ Store = &SQLite{}

// SQLite is a Store backed by a SQLite database. Every widget key is one row,
// and a Write replaces both keys inside a single immediate transaction.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open database %s", path)
	}
	// A single connection serializes transactions inside the process, so
	// concurrent writers queue instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, pkgerrors.Wrapf(err, "failed to init schema in %s", path)
	}

	return &SQLite{db: db}, nil
}

// DB returns the underlying database, shared with the widget registry.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func readState(ctx context.Context, q queryer, id widget.ID) (widget.State, error) {
	rows, err := q.QueryContext(ctx, "SELECT key, value FROM widget_state WHERE widget_id = ?", string(id))
	if err != nil {
		return widget.State{}, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logrus.Warnf("failed to close rows for widget %s: %v", id, err)
		}
	}()

	var st widget.State
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return widget.State{}, err
		}
		switch key {
		case widget.KeyPercent:
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return widget.State{}, pkgerrors.Wrapf(err, "bad %s value %q", key, value)
			}
			st.Percent = &v
		case widget.KeyLastUpdatedMillis:
			v, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return widget.State{}, pkgerrors.Wrapf(err, "bad %s value %q", key, value)
			}
			st.LastUpdatedMillis = &v
		default:
			logrus.WithFields(logrus.Fields{"widget": id, "key": key}).Debug("ignoring unknown state key")
		}
	}
	return st, rows.Err()
}

func (s *SQLite) Read(ctx context.Context, id widget.ID) (widget.State, error) {
	st, err := readState(ctx, s.db, id)
	if err != nil {
		return widget.State{}, pkgerrors.Wrapf(ErrStoreUnavailable, "read %s: %v", id, err)
	}
	return st, nil
}

func (s *SQLite) Write(ctx context.Context, id widget.ID, m Mutator) (widget.State, error) {
	st, err := s.write(ctx, id, m)
	if err != nil {
		return widget.State{}, pkgerrors.Wrapf(ErrStoreUnavailable, "write %s: %v", id, err)
	}
	return st, nil
}

func (s *SQLite) write(ctx context.Context, id widget.ID, m Mutator) (widget.State, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return widget.State{}, err
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback()
	}()

	st, err := readState(ctx, tx, id)
	if err != nil {
		return widget.State{}, err
	}

	m(&st)

	var percent, updated *string
	if st.Percent != nil {
		v := strconv.FormatFloat(*st.Percent, 'g', -1, 64)
		percent = &v
	}
	if st.LastUpdatedMillis != nil {
		v := strconv.FormatInt(*st.LastUpdatedMillis, 10)
		updated = &v
	}
	if err := putKey(ctx, tx, id, widget.KeyPercent, percent); err != nil {
		return widget.State{}, err
	}
	if err := putKey(ctx, tx, id, widget.KeyLastUpdatedMillis, updated); err != nil {
		return widget.State{}, err
	}

	if err := tx.Commit(); err != nil {
		return widget.State{}, err
	}
	return st, nil
}

func putKey(ctx context.Context, tx *sql.Tx, id widget.ID, key string, value *string) error {
	if value == nil {
		_, err := tx.ExecContext(ctx, "DELETE FROM widget_state WHERE widget_id = ? AND key = ?", string(id), key)
		return err
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO widget_state (widget_id, key, value) VALUES (?, ?, ?) ON CONFLICT(widget_id, key) DO UPDATE SET value = excluded.value",
		string(id), key, *value,
	)
	return err
}

func (s *SQLite) Delete(ctx context.Context, id widget.ID) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM widget_state WHERE widget_id = ?", string(id)); err != nil {
		return pkgerrors.Wrapf(ErrStoreUnavailable, "delete %s: %v", id, err)
	}
	return nil
}
