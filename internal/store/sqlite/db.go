package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Readers may run alongside the writer because the file is in WAL mode.
const readerConns = 4

// DB is an api_keys database opened twice: Writer is capped at one
// connection, so Insert's ON CONFLICT check and Update's RETURNING read
// never interleave with another mutation. Reader serves Get and List.
type DB struct {
	Writer *sql.DB
	Reader *sql.DB
}

func dsn(dbPath string) string {
	return "file:" + dbPath +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"
}

// NewDB opens the key database at dbPath, creating the file if needed.
func NewDB(dbPath string) (*DB, error) {
	writer, err := openPool(dsn(dbPath), 1)
	if err != nil {
		return nil, fmt.Errorf("open key db writer %s: %w", dbPath, err)
	}

	reader, err := openPool(dsn(dbPath), readerConns)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open key db reader %s: %w", dbPath, err)
	}

	return &DB{Writer: writer, Reader: reader}, nil
}

func openPool(dsn string, maxConns int) (*sql.DB, error) {
	pool, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	pool.SetMaxOpenConns(maxConns)

	if err := pool.Ping(); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Close releases both pools, reporting the reader error first.
func (db *DB) Close() error {
	readerErr := db.Reader.Close()
	writerErr := db.Writer.Close()

	switch {
	case readerErr != nil:
		return fmt.Errorf("close key db reader: %w", readerErr)
	case writerErr != nil:
		return fmt.Errorf("close key db writer: %w", writerErr)
	}
	return nil
}
