// Package recording stores and prints the reset transitions of a
// simulation.
package recording

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/fatih/structs"
	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// ErrFileExists is returned when a recording would overwrite a file.
var ErrFileExists = errors.New("recording: file already exists")

// Recorder is a backend that stores rows of flat structs.
type Recorder interface {
	// CreateTable creates a table whose columns are the fields of
	// sampleEntry.
	CreateTable(tableName string, sampleEntry any)

	// InsertData buffers one row of a table created before.
	InsertData(tableName string, entry any)

	// ListTables returns the names of all tables, sorted.
	ListTables() []string

	// Flush writes every buffered row into the database.
	Flush()
}

// DefaultFileName returns a fresh name for a recording database, without
// the extension.
func DefaultFileName() string {
	return "crg_recording_" + xid.New().String()
}

// New creates a recorder writing into path.sqlite3. An empty path picks a
// unique name. Buffered rows are flushed when the program exits through
// atexit.
func New(path string) (*SQLiteRecorder, error) {
	if path == "" {
		path = DefaultFileName()
	}

	filename := path + ".sqlite3"

	if _, err := os.Stat(filename); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrFileExists, filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, err
	}

	r := NewWithDB(db)
	r.filename = filename

	return r, nil
}

// NewWithDB creates a recorder on an open database. The database is limited
// to one connection so that a flush and its transaction share it.
func NewWithDB(db *sql.DB) *SQLiteRecorder {
	db.SetMaxOpenConns(1)

	r := &SQLiteRecorder{
		DB:        db,
		batchSize: 10000,
		tables:    make(map[string]*table),
	}

	atexit.Register(func() { r.Flush() })

	return r
}

type table struct {
	structType reflect.Type
	columns    int
	entries    []any
}

// SQLiteRecorder buffers rows and writes them into SQLite in batches.
type SQLiteRecorder struct {
	*sql.DB

	filename   string
	tables     map[string]*table
	batchSize  int
	entryCount int
}

// FileName returns the database file, or "" for a recorder created on an
// existing database.
func (r *SQLiteRecorder) FileName() string {
	return r.filename
}

func isAllowedKind(kind reflect.Kind) bool {
	switch kind {
	case
		reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return true
	default:
		return false
	}
}

func checkStructFields(entry any) error {
	if !structs.IsStruct(entry) {
		return fmt.Errorf("recording: %T is not a struct", entry)
	}

	for _, f := range structs.Fields(entry) {
		if !isAllowedKind(f.Kind()) {
			return fmt.Errorf("recording: field %T.%s cannot be stored",
				entry, f.Name())
		}
	}

	return nil
}

// CreateTable creates a table. It panics if the entry is not a flat struct.
func (r *SQLiteRecorder) CreateTable(tableName string, sampleEntry any) {
	if err := checkStructFields(sampleEntry); err != nil {
		panic(err)
	}

	names := structs.Names(sampleEntry)

	r.mustExecute(`CREATE TABLE IF NOT EXISTS ` + tableName +
		` (` + "\n\t" + strings.Join(names, ", \n\t") + "\n" + `);`)

	r.tables[tableName] = &table{
		structType: reflect.TypeOf(sampleEntry),
		columns:    len(names),
	}
}

// InsertData buffers a row. It panics if the table was not created.
func (r *SQLiteRecorder) InsertData(tableName string, entry any) {
	t, exists := r.tables[tableName]
	if !exists {
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	if reflect.TypeOf(entry) != t.structType {
		panic(fmt.Sprintf("table %s stores %s, not %T", tableName, t.structType, entry))
	}

	t.entries = append(t.entries, entry)

	r.entryCount++
	if r.entryCount >= r.batchSize {
		r.Flush()
	}
}

// ListTables returns the created tables.
func (r *SQLiteRecorder) ListTables() []string {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Flush writes the buffered rows in one transaction.
func (r *SQLiteRecorder) Flush() {
	if r.entryCount == 0 {
		return
	}

	r.mustExecute("BEGIN TRANSACTION")
	defer r.mustExecute("COMMIT TRANSACTION")

	for _, name := range r.ListTables() {
		t := r.tables[name]
		if len(t.entries) == 0 {
			continue
		}

		stmt := r.prepareInsert(name, t.columns)

		for _, entry := range t.entries {
			if _, err := stmt.Exec(structs.Values(entry)...); err != nil {
				panic(err)
			}
		}

		t.entries = nil

		stmt.Close()
	}

	r.entryCount = 0
}

func (r *SQLiteRecorder) mustExecute(query string) sql.Result {
	res, err := r.Exec(query)
	if err != nil {
		panic(fmt.Errorf("failed to execute %q: %w", query, err))
	}

	return res
}

func (r *SQLiteRecorder) prepareInsert(tableName string, columns int) *sql.Stmt {
	marks := make([]string, columns)
	for i := range marks {
		marks[i] = "?"
	}

	stmt, err := r.Prepare(
		"INSERT INTO " + tableName + " VALUES (" + strings.Join(marks, ", ") + ")")
	if err != nil {
		panic(err)
	}

	return stmt
}

// ReadTransitions loads the transitions stored in a database, optionally
// only those of one domain, in the order they happened.
func ReadTransitions(
	ctx context.Context,
	db *sql.DB,
	domain string,
) ([]TransitionEntry, error) {
	query := "SELECT Domain, FromState, ToState, Cycle, Time FROM " +
		TransitionTable
	args := []any{}

	if domain != "" {
		query += " WHERE Domain = ?"
		args = append(args, domain)
	}

	query += " ORDER BY Time, rowid"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reading transitions: %w", err)
	}
	defer rows.Close()

	entries := []TransitionEntry{}

	for rows.Next() {
		var e TransitionEntry

		err := rows.Scan(&e.Domain, &e.FromState, &e.ToState, &e.Cycle, &e.Time)
		if err != nil {
			return nil, fmt.Errorf("reading transitions: %w", err)
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}
