package database

import (
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/dispatchcore/bulk-dispatch-service/environments"
	"github.com/dispatchcore/bulk-dispatch-service/pkg/logger"
)

func NewMySQLDB(cfg environments.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
	)

	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Infof("Connected to MySQL database")
	return db, nil
}

func RunMigrations(db *sqlx.DB) error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS contracts (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			channel_id VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL,
			total_count INT NOT NULL DEFAULT 0,
			success_count INT NOT NULL DEFAULT 0,
			failure_count INT NOT NULL DEFAULT 0,
			pending_count INT NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
			started_at DATETIME,
			completed_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_contracts_status (status),
			INDEX idx_contracts_channel (channel_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS recipients (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			contract_id BIGINT NOT NULL,
			address VARCHAR(320) NOT NULL,
			message TEXT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
			attempts INT NOT NULL DEFAULT 0,
			last_attempt_at DATETIME,
			error_message VARCHAR(512),
			delivery_id VARCHAR(100),
			sent_at DATETIME,
			created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			INDEX idx_recipients_contract_status (contract_id, status),
			INDEX idx_recipients_created_at (created_at),
			CONSTRAINT fk_recipients_contract FOREIGN KEY (contract_id)
				REFERENCES contracts (id) ON DELETE CASCADE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,
	}

	for _, schema := range schemas {
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	logger.Infof("Database migrations completed")

	return nil
}

func SeedTestData(db *sqlx.DB) error {
	var count int

	err := db.Get(&count, "SELECT COUNT(*) FROM contracts")
	if err != nil {
		return err
	}

	if count > 0 {
		logger.Infof("Database already has %d contracts, skipping seed", count)
		return nil
	}

	res, err := db.Exec(
		`INSERT INTO contracts (channel_id, name, total_count, pending_count, status)
		 VALUES ('demo-channel', 'Welcome wave', 3, 3, 'PENDING')`,
	)
	if err != nil {
		return fmt.Errorf("failed to seed contract: %w", err)
	}

	contractID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get seeded contract id: %w", err)
	}

	recipients := []struct {
		address string
		message string
	}{
		{"+905551234567", "Hello! Your account is ready."},
		{"+905559876543", "Welcome aboard, reply STOP to opt out."},
		{"+905551112233", "Your starter guide: https://example.com/start"},
	}

	for _, r := range recipients {
		_, err := db.Exec(
			"INSERT INTO recipients (contract_id, address, message, status) VALUES (?, ?, ?, 'PENDING')",
			contractID, r.address, r.message,
		)
		if err != nil {
			return fmt.Errorf("failed to seed recipients: %w", err)
		}
	}

	logger.Infof("Seeded demo contract %d with %d recipients", contractID, len(recipients))
	return nil
}
