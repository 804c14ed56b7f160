package db

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"

	"modernc.org/sqlite"

	"taskboard/internal/domain"
)

const defaultDBName = "taskboard.db"

type Config struct {
	Workspace string
}

func init() {
	// contains_fold(haystack, needle) lets the SQL store filter with the same matcher as in-memory snapshots.
	sqlite.MustRegisterDeterministicScalarFunction("contains_fold", 2, containsFold)
}

func containsFold(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	s, needle := textArg(args[0]), textArg(args[1])
	if domain.ContainsFold(s, needle) {
		return int64(1), nil
	}
	return int64(0), nil
}

func textArg(v driver.Value) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func dbPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".taskboard", defaultDBName)
}

// EnsureWorkspace creates workspace directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	path := filepath.Join(workspace, ".taskboard")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Open opens the SQLite database with foreign keys on.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dbPath(cfg.Workspace))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Path returns the db path for the workspace.
func Path(workspace string) string {
	return dbPath(workspace)
}
