package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/structs"
)

// A Filter selects rows of a recorded table. Where is an SQL condition with
// ? placeholders filled from Args. A zero Limit returns every row.
type Filter struct {
	Where   string
	Args    []any
	OrderBy string
	Limit   int
	Offset  int
}

func (f Filter) where() string {
	if f.Where == "" {
		return ""
	}

	return " WHERE " + f.Where
}

func (f Filter) page() string {
	var b strings.Builder

	if f.OrderBy != "" {
		b.WriteString(" ORDER BY " + f.OrderBy)
	}

	if f.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}

	return b.String()
}

// A Reader opens a finished recording read-only.
type Reader struct {
	db   *sql.DB
	path string
}

// NewReader opens the recording stored in path.
func NewReader(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open recording %s: %w", path, err)
	}

	return &Reader{db: db, path: path}, nil
}

// Path returns the recording file.
func (r *Reader) Path() string {
	return r.path
}

// Tables lists the tables of the recording by name.
func (r *Reader) Tables(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}

		names = append(names, n)
	}

	return names, rows.Err()
}

// Count returns how many rows of a table match the filter. Limit and Offset
// are ignored.
func (r *Reader) Count(ctx context.Context, table string, f Filter) (int, error) {
	var n int

	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+table+f.where(), f.Args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}

	return n, nil
}

// Close closes the recording.
func (r *Reader) Close() error {
	return r.db.Close()
}

// Query reads the rows of a table into entries of type T. T must be the
// struct the table was created from; columns are selected by field name.
func Query[T any](
	ctx context.Context,
	r *Reader,
	table string,
	f Filter,
) ([]T, error) {
	var zero T
	if err := checkStructFields(zero); err != nil {
		return nil, err
	}

	columns := structs.Names(zero)
	query := "SELECT " + strings.Join(columns, ", ") + " FROM " + table +
		f.where() + f.page()

	rows, err := r.db.QueryContext(ctx, query, f.Args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var entries []T
	targets := make([]any, len(columns))

	for rows.Next() {
		var entry T
		v := reflect.ValueOf(&entry).Elem()

		for i, c := range columns {
			targets[i] = v.FieldByName(c).Addr().Interface()
		}

		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// ReadTasks returns the traced tasks in the order they started. An empty kind
// selects tasks of every kind.
func ReadTasks(ctx context.Context, r *Reader, kind string) ([]TaskEntry, error) {
	f := Filter{OrderBy: "StartTime, ID"}
	if kind != "" {
		f.Where = "Kind = ?"
		f.Args = []any{kind}
	}

	return Query[TaskEntry](ctx, r, TaskTable, f)
}

// ReadExecInfo returns the execution properties in the order they were
// recorded.
func ReadExecInfo(ctx context.Context, r *Reader) ([]ExecInfo, error) {
	return Query[ExecInfo](ctx, r, ExecInfoTable, Filter{OrderBy: "rowid"})
}
