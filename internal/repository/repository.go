package repository

import (
	"context"
	"database/sql"
	"time"

	"blinds_bridge/internal/models"
)

// Authorization stores controller accounts.
type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// EventFilter narrows an event listing. Zero fields are not applied.
type EventFilter struct {
	From     time.Time
	To       time.Time
	Type     string
	DeviceID string
	Limit    int
}

// EventRepo is the append-only operational log.
type EventRepo interface {
	Append(ctx context.Context, e models.BridgeEvent) error
	List(ctx context.Context, f EventFilter) ([]models.BridgeEvent, error)
}

// CredentialRepo keeps the identity/PSK pair issued by each gateway.
type CredentialRepo interface {
	Load(ctx context.Context, host string) (models.GatewayCredentials, error)
	Save(ctx context.Context, c models.GatewayCredentials) error
}

type Repository struct {
	Auth        Authorization
	EventRepo   EventRepo
	Credentials CredentialRepo
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Auth:        NewUserRepository(db),
		EventRepo:   NewEventSQLite(db),
		Credentials: NewCredentialSQLite(db),
	}
}
