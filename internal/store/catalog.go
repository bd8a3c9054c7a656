package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/plantest/internal/parallelism"
)

// ErrNotFound is returned when a database or table does not exist.
var ErrNotFound = errors.New("not found")

// CreateDatabase adds a database. Creating an existing database is a no-op.
func (s *Store) CreateDatabase(ctx context.Context, name, comment string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO databases (name, comment) VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, comment)
	if err != nil {
		return fmt.Errorf("create database %s: %w", name, err)
	}
	return nil
}

// CreateTable adds a table or replaces its format. The database must exist.
func (s *Store) CreateTable(ctx context.Context, db, name string, format parallelism.TableFormat) error {
	if err := s.requireDatabase(ctx, db); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tables (db, name, format, view_definition) VALUES (?, ?, ?, NULL)
		ON CONFLICT(db, name) DO UPDATE SET format = excluded.format, view_definition = NULL
	`, db, name, string(format))
	if err != nil {
		return fmt.Errorf("create table %s.%s: %w", db, name, err)
	}
	return nil
}

// CreateView adds a view with the given definition. The database must exist.
func (s *Store) CreateView(ctx context.Context, db, name, definition string) error {
	if err := s.requireDatabase(ctx, db); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tables (db, name, format, view_definition) VALUES (?, ?, '', ?)
		ON CONFLICT(db, name) DO UPDATE SET format = '', view_definition = excluded.view_definition
	`, db, name, definition)
	if err != nil {
		return fmt.Errorf("create view %s.%s: %w", db, name, err)
	}
	return nil
}

// Tables returns the table and view names of db, sorted.
func (s *Store) Tables(ctx context.Context, db string) ([]string, error) {
	if err := s.requireDatabase(ctx, db); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM tables WHERE db = ? ORDER BY name COLLATE BINARY ASC
	`, db)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return names, nil
}

// TableFormat returns the storage format of db.table. Views have no format
// of their own and report parallelism.FormatUnknown.
func (s *Store) TableFormat(ctx context.Context, db, table string) (parallelism.TableFormat, error) {
	var format string
	err := s.db.QueryRowContext(ctx, `
		SELECT format FROM tables WHERE db = ? AND name = ?
	`, db, table).Scan(&format)
	if errors.Is(err, sql.ErrNoRows) {
		return parallelism.FormatUnknown, fmt.Errorf("table %s.%s: %w", db, table, ErrNotFound)
	}
	if err != nil {
		return parallelism.FormatUnknown, fmt.Errorf("query table format: %w", err)
	}
	if format == "" {
		return parallelism.FormatUnknown, nil
	}
	return parallelism.ParseTableFormat(format)
}

// ViewDefinition returns the definition of the view db.name.
func (s *Store) ViewDefinition(ctx context.Context, db, name string) (string, error) {
	var def sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT view_definition FROM tables WHERE db = ? AND name = ?
	`, db, name).Scan(&def)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !def.Valid) {
		return "", fmt.Errorf("view %s.%s: %w", db, name, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("query view: %w", err)
	}
	return def.String, nil
}

func (s *Store) requireDatabase(ctx context.Context, db string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM databases WHERE name = ?`, db).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("database %s: %w", db, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("query database: %w", err)
	}
	return nil
}
