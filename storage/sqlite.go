package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tickets (
	channel_id  TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	status      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tickets_owner ON tickets(owner_id);
`

type SQLiteStore struct {
	Path string
	db   *sql.DB
}

func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// a single connection keeps writes serialized for the pure-Go driver
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	logger.Info("sqlite ticket store initialised", "path", path)
	return &SQLiteStore{Path: path, db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, t Ticket) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO tickets (channel_id, owner_id, created_at, status) VALUES (?, ?, ?, ?) ON CONFLICT(channel_id) DO NOTHING",
		t.ChannelID, t.OwnerID, t.CreatedAt.UnixNano(), t.Status.String(),
	)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	if n == 0 {
		return ErrTicketExists
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, channelID string) (Ticket, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT channel_id, owner_id, created_at, status FROM tickets WHERE channel_id = ?",
		channelID,
	)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Ticket{}, ErrTicketNotFound
	}
	return t, err
}

func (s *SQLiteStore) SetStatus(ctx context.Context, channelID string, status Status) error {
	res, err := s.db.ExecContext(ctx, "UPDATE tickets SET status = ? WHERE channel_id = ?", status.String(), channelID)
	if err != nil {
		return fmt.Errorf("update ticket status: %w", err)
	}
	return requireAffected(res)
}

func (s *SQLiteStore) Delete(ctx context.Context, channelID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tickets WHERE channel_id = ?", channelID)
	if err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	return requireAffected(res)
}

func (s *SQLiteStore) List(ctx context.Context) ([]Ticket, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT channel_id, owner_id, created_at, status FROM tickets ORDER BY created_at, channel_id",
	)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var out []Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(r rowScanner) (Ticket, error) {
	var (
		t       Ticket
		created int64
		status  string
	)
	if err := r.Scan(&t.ChannelID, &t.OwnerID, &created, &status); err != nil {
		return Ticket{}, err
	}
	st, err := ParseStatus(status)
	if err != nil {
		return Ticket{}, err
	}
	t.CreatedAt = time.Unix(0, created)
	t.Status = st
	return t, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTicketNotFound
	}
	return nil
}
