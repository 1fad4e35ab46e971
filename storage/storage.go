// Package storage holds the ticket registry: the authoritative record of
// which channels are open tickets and who owns them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ticket-bot/config"
)

var (
	ErrTicketExists   = errors.New("ticket already exists for channel")
	ErrTicketNotFound = errors.New("ticket not found")
)

type Status int

const (
	StatusOpen Status = iota + 1
	StatusClosing
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusClosing:
		return "closing"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

func ParseStatus(v string) (Status, error) {
	switch v {
	case "open":
		return StatusOpen, nil
	case "closing":
		return StatusClosing, nil
	default:
		return 0, fmt.Errorf("unknown ticket status %q", v)
	}
}

func (s Status) MarshalText() ([]byte, error) {
	if s != StatusOpen && s != StatusClosing {
		return nil, fmt.Errorf("invalid ticket status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

type Ticket struct {
	ChannelID string    `json:"channel_id" bson:"_id"`
	OwnerID   string    `json:"owner_id"   bson:"owner_id"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	Status    Status    `json:"status"     bson:"status"`
}

func (t Ticket) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("channel_id", t.ChannelID),
		slog.String("owner_id", t.OwnerID),
		slog.Time("created_at", t.CreatedAt),
		slog.String("status", t.Status.String()),
	)
}

// Store is the ticket registry contract. Implementations must reject a
// Create for a channel that is already present with ErrTicketExists, and
// report ErrTicketNotFound from SetStatus and Delete instead of treating a
// missing entry as success.
type Store interface {
	Create(ctx context.Context, t Ticket) error
	Get(ctx context.Context, channelID string) (Ticket, error)
	SetStatus(ctx context.Context, channelID string, status Status) error
	Delete(ctx context.Context, channelID string) error
	// List returns every ticket ordered by creation time.
	List(ctx context.Context) ([]Ticket, error)
	Close() error
}

func Open(ctx context.Context, cfg *config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		return NewMemoryStore(), nil
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLite.Path, logger)
	case config.DriverMongoDB:
		return OpenMongoDB(ctx, cfg.MongoDB.URI, cfg.MongoDB.Database, logger)
	case config.DriverRedis:
		return OpenRedis(ctx, cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s (use \"memory\", \"sqlite\", \"mongodb\" or \"redis\")", cfg.Driver)
	}
}
