package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"panelmotion/internal/infra"
	"panelmotion/internal/sqlinline"
)

const (
	ProviderReplicate = "replicate"
)

// Store reads and writes upstream API tokens kept in the integration_tokens table.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// ReplicateToken returns the stored Replicate token, or "" when none is configured.
func (s *Store) ReplicateToken(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderReplicate)
}

func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	if s == nil || s.sql == nil {
		return "", nil
	}
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// SetReplicateToken stores or replaces the Replicate token.
func (s *Store) SetReplicateToken(ctx context.Context, token string, props map[string]any) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("replicate api token is required")
	}
	return s.upsert(ctx, ProviderReplicate, token, props)
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}

// TokenSource resolves a token lazily: the static value wins, the store is the fallback.
type TokenSource struct {
	Static string
	Store  *Store
}

// Token implements the token lookup used by the upstream clients.
func (t TokenSource) Token(ctx context.Context) (string, error) {
	if v := strings.TrimSpace(t.Static); v != "" {
		return v, nil
	}
	if t.Store == nil {
		return "", nil
	}
	return t.Store.ReplicateToken(ctx)
}
