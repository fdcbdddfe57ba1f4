package utils

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

var DB *sql.DB

// DBDriver is the driver DB was opened with.
var DBDriver string

// InitDB opens the job history database selected by HISTORY_DRIVER.
func InitDB(logger *zap.Logger) error {
	driver := MustGetEnv("HISTORY_DRIVER")

	var dsn string
	switch driver {
	case DriverPostgres:
		host := MustGetEnv("POSTGRES_HOST")
		port := GetEnvOrDefault("POSTGRES_PORT", "5432")
		user := MustGetEnv("POSTGRES_USER")
		password := MustGetEnv("POSTGRES_PASSWORD")
		dbname := MustGetEnv("POSTGRES_DB")
		sslmode := GetEnvOrDefault("POSTGRES_SSLMODE", "disable")

		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			host, port, user, password, dbname, sslmode)
	case DriverSQLite:
		path := GetEnvOrDefault("SQLITE_PATH", "ollama_ai_analyzer.db")
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000", path)
	default:
		return fmt.Errorf("unsupported HISTORY_DRIVER %q", driver)
	}

	return OpenDB(driver, dsn, logger)
}

// OpenDB opens and pings the database.
func OpenDB(driver, dsn string, logger *zap.Logger) error {
	var err error
	DB, err = sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	DBDriver = driver

	if driver == DriverSQLite {
		// A single writer avoids "database is locked" under concurrent recorders.
		DB.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established successfully", zap.String("driver", driver))

	return nil
}

// CreateSchema creates the necessary database tables if they don't exist
func CreateSchema(logger *zap.Logger) error {
	if DB == nil {
		return fmt.Errorf("database connection is nil; call InitDB first")
	}

	ctx := context.Background()

	timestamp := "TIMESTAMP WITH TIME ZONE"
	if DBDriver == DriverSQLite {
		// go-sqlite3 only decodes columns declared exactly as TIMESTAMP.
		timestamp = "TIMESTAMP"
	}

	_, err := DB.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS analysis_jobs (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			model TEXT NOT NULL,
			command_line TEXT NOT NULL,
			output TEXT NOT NULL,
			exit_code INT,
			error_detail TEXT NOT NULL DEFAULT '',
			payload_dir TEXT NOT NULL DEFAULT '',
			started_at %[1]s NOT NULL,
			finished_at %[1]s,
			created_at %[1]s DEFAULT CURRENT_TIMESTAMP
		)
	`, timestamp))
	if err != nil {
		return fmt.Errorf("failed to create analysis_jobs table: %w", err)
	}

	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_analysis_jobs_started_at ON analysis_jobs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_jobs_session_id ON analysis_jobs(session_id)`,
	} {
		if _, err := DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	logger.Info("Database schema created successfully")
	return nil
}

// CloseDB closes the database connection
func CloseDB(logger *zap.Logger) error {
	if DB != nil {
		logger.Info("Closing database connection")
		return DB.Close()
	}
	return nil
}
