package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type PostgresConfig struct {
	DSN     string        `envconfig:"DSN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

type sessionRow struct {
	bun.BaseModel `bun:"table:session_contexts,alias:sc"`

	SessionID string    `bun:"session_id,pk"`
	Payload   []byte    `bun:"payload,type:jsonb,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// PostgresStore persists session contexts as jsonb rows via bun.
type PostgresStore struct {
	db *bun.DB
}

func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithTimeout(timeout),
	))
	db := bun.NewDB(sqldb, pgdialect.New())

	return &PostgresStore{db: db}, nil
}

// EnsureSchema creates the session table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*sessionRow)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create session_contexts table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, sessionID string) (*SessionContext, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}

	row := new(sessionRow)
	err := s.db.NewSelect().
		Model(row).
		Where("session_id = ?", sessionID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("load session context: %w", err)
	}

	var sctx SessionContext
	if err := json.Unmarshal(row.Payload, &sctx); err != nil {
		return nil, fmt.Errorf("unmarshal session context: %w", err)
	}
	if err := sctx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session context loaded from store: %w", err)
	}
	return &sctx, nil
}

func (s *PostgresStore) Save(ctx context.Context, sctx *SessionContext) error {
	if sctx == nil {
		return ErrNilContext
	}
	if strings.TrimSpace(sctx.SessionID) == "" {
		return ErrInvalidSession
	}
	if sctx.Version <= 0 {
		sctx.Version = 1
	}
	if sctx.UpdatedAt.IsZero() {
		sctx.UpdatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(sctx)
	if err != nil {
		return fmt.Errorf("marshal session context: %w", err)
	}

	row := &sessionRow{
		SessionID: sctx.SessionID,
		Payload:   payload,
		UpdatedAt: sctx.UpdatedAt,
	}

	_, err = s.db.NewInsert().
		Model(row).
		On("CONFLICT (session_id) DO UPDATE").
		Set("payload = EXCLUDED.payload").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save session context: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	_, err := s.db.NewDelete().
		Model((*sessionRow)(nil)).
		Where("session_id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete session context: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
