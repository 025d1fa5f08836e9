package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// LONGTEXT rather than JSON: the JSON type rewrites documents and would break
// byte fidelity of the stored provider response.
const schema = `
CREATE TABLE IF NOT EXISTS dump_analyses (
  dump_id         VARCHAR(191) NOT NULL PRIMARY KEY,
  input_payload   LONGTEXT     NOT NULL,
  analysis_result LONGTEXT     NOT NULL,
  created_at      DATETIME(6)  NOT NULL,
  INDEX idx_dump_analyses_created_at (created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	if err := Migrate(ctx2, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the dump_analyses table when missing
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
