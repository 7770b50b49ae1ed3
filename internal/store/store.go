// Package store persists transactions and processed-message markers in
// SQLite. It is the single durable source of truth for "has this message
// already been handled".
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dimeagent/internal/domain"

	_ "modernc.org/sqlite"
)

// Store implements domain.Store on SQLite.
type Store struct {
	db     *sql.DB
	echoes *EchoSet
	logger *slog.Logger
}

func New(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, echoes: NewEchoSet(defaultEchoCapacity), logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transactions (
		id                 TEXT PRIMARY KEY,
		source_message_id  TEXT UNIQUE NOT NULL,
		sender             TEXT,
		received_at        TEXT,
		processed_at       TEXT,
		merchant_name      TEXT,
		merchant_category  TEXT,
		merchant_address   TEXT,
		transaction_date   TEXT,
		subtotal           REAL,
		tax                REAL,
		total              REAL,
		payment_method     TEXT,
		items_json         TEXT,
		confidence_score   REAL,
		status             TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_txn_sender ON transactions(sender);

	CREATE TABLE IF NOT EXISTS processed_messages (
		message_id   TEXT PRIMARY KEY,
		processed_at TEXT,
		kind         TEXT
	);

	CREATE TABLE IF NOT EXISTS failed_messages (
		message_id  TEXT PRIMARY KEY,
		reason      TEXT,
		failed_at   TEXT
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_messages WHERE message_id = ?`, messageID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query processed: %w", err)
	}
	return true, nil
}

// MarkProcessed records a marker; duplicates silently no-op.
func (s *Store) MarkProcessed(ctx context.Context, messageID, kind string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_messages (message_id, processed_at, kind) VALUES (?, ?, ?)`,
		messageID, time.Now().UTC().Format(time.RFC3339), kind)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// SaveTransaction inserts tx and its receipt marker in one SQL transaction.
// A duplicate source_message_id returns (false, nil): the uniqueness
// constraint, not application code, is the idempotency boundary.
func (s *Store) SaveTransaction(ctx context.Context, tx domain.Transaction) (bool, error) {
	itemsJSON, err := json.Marshal(tx.Items)
	if err != nil {
		return false, fmt.Errorf("marshal items: %w", err)
	}

	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer dbtx.Rollback()

	res, err := dbtx.ExecContext(ctx, `
		INSERT OR IGNORE INTO transactions (
			id, source_message_id, sender, received_at, processed_at,
			merchant_name, merchant_category, merchant_address,
			transaction_date, subtotal, tax, total, payment_method,
			items_json, confidence_score, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.SourceMessageID, tx.Sender,
		tx.ReceivedAt.UTC().Format(time.RFC3339),
		tx.ProcessedAt.UTC().Format(time.RFC3339),
		tx.Merchant.Name, tx.Merchant.Category, tx.Merchant.Address,
		tx.Details.Date, tx.Details.Subtotal, tx.Details.Tax, tx.Details.Total,
		tx.Details.PaymentMethod, string(itemsJSON), tx.ConfidenceScore, tx.Status)
	if err != nil {
		return false, fmt.Errorf("insert transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.logger.Warn("duplicate transaction ignored", "source_message_id", tx.SourceMessageID)
		return false, nil
	}

	if _, err := dbtx.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_messages (message_id, processed_at, kind) VALUES (?, ?, ?)`,
		tx.SourceMessageID, time.Now().UTC().Format(time.RFC3339), domain.KindReceipt); err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}

	if err := dbtx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	s.logger.Info("saved transaction", "id", tx.ID, "merchant", tx.Merchant.Name, "total", tx.Details.Total)
	return true, nil
}

// RecordFailure writes a dead-letter row for a terminally failed message.
// The message deliberately keeps no processed marker, so it stays eligible
// for reprocessing after a restart.
func (s *Store) RecordFailure(ctx context.Context, messageID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO failed_messages (message_id, reason, failed_at) VALUES (?, ?, ?)`,
		messageID, reason, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

func (s *Store) FailureCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failed_messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count failures: %w", err)
	}
	return n, nil
}

// GetProcessedMessageIDs dumps every marker; used once at startup to seed
// the source's in-memory cache.
func (s *Store) GetProcessedMessageIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT message_id FROM processed_messages`)
	if err != nil {
		return nil, fmt.Errorf("query markers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) GetRecentTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_message_id, sender, received_at, processed_at,
		       merchant_name, merchant_category, merchant_address,
		       transaction_date, subtotal, tax, total, payment_method,
		       items_json, confidence_score, status
		FROM transactions ORDER BY processed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *Store) GetTotalSpending(ctx context.Context) (float64, error) {
	var total sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `SELECT SUM(total) FROM transactions`).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum spending: %w", err)
	}
	return total.Float64, nil
}

func scanTransaction(rows *sql.Rows) (domain.Transaction, error) {
	var tx domain.Transaction
	var receivedAt, processedAt, itemsJSON string
	err := rows.Scan(&tx.ID, &tx.SourceMessageID, &tx.Sender, &receivedAt, &processedAt,
		&tx.Merchant.Name, &tx.Merchant.Category, &tx.Merchant.Address,
		&tx.Details.Date, &tx.Details.Subtotal, &tx.Details.Tax, &tx.Details.Total,
		&tx.Details.PaymentMethod, &itemsJSON, &tx.ConfidenceScore, &tx.Status)
	if err != nil {
		return tx, fmt.Errorf("scan transaction: %w", err)
	}
	tx.ReceivedAt, _ = time.Parse(time.RFC3339, receivedAt)
	tx.ProcessedAt, _ = time.Parse(time.RFC3339, processedAt)
	if itemsJSON != "" {
		if err := json.Unmarshal([]byte(itemsJSON), &tx.Items); err != nil {
			return tx, fmt.Errorf("unmarshal items: %w", err)
		}
	}
	return tx, nil
}

// MarkSent remembers our own outbound text for echo suppression.
func (s *Store) MarkSent(text string) { s.echoes.Add(text) }

// IsBotResponse reports whether inbound text matches a recent outbound
// message of ours.
func (s *Store) IsBotResponse(text string) bool { return s.echoes.Contains(text) }

func (s *Store) Close() error {
	return s.db.Close()
}
