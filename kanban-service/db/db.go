package db

import (
	"database/sql"
)

func Connect(driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	return db, nil
}

// Migrate creates the tasks table and its indexes. The DDL is kept portable
// between lib/pq and go-sqlite3 so tests can run against :memory:.
func Migrate(db *sql.DB) error {
	ddl := `
CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  assignee TEXT,
  due_date DATE,
  description TEXT,
  priority TEXT,
  labels TEXT,
  estimated_time DOUBLE PRECISION,
  status TEXT NOT NULL,
  created_at TIMESTAMP NOT NULL,
  last_modified TIMESTAMP NOT NULL,
  deleted_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_task_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_task_priority ON tasks(priority);
CREATE INDEX IF NOT EXISTS idx_task_due_date ON tasks(due_date);
`
	_, err := db.Exec(ddl)
	return err
}
