// Package remote talks to the authoritative RegiFarm service over its REST
// contract: per-entity collection endpoints and the batched pull endpoint.
package remote

import (
	"context"
	"encoding/json"
	"net/url"
	"time"
)

// Client is the remote service contract used by the sync engine. Payloads
// are opaque JSON objects; numbers decode as json.Number.
type Client interface {
	Create(ctx context.Context, endpoint string, payload map[string]any) (map[string]any, error)
	Update(ctx context.Context, endpoint string, id int64, payload map[string]any) (map[string]any, error)
	Delete(ctx context.Context, endpoint string, id int64) error
	List(ctx context.Context, endpoint string, query url.Values) ([]map[string]any, error)
	Pull(ctx context.Context, req PullRequest) (*PullResponse, error)
}

// PullRequest asks for every change of a tenant, optionally only those
// updated after a cursor.
type PullRequest struct {
	AziendaID    int64      `json:"azienda_id"`
	UpdatedAfter *time.Time `json:"updated_after,omitempty"`
}

// PullResponse carries one JSON array per entity. Tables are kept raw so a
// malformed table can be skipped without failing the others.
type PullResponse struct {
	Tables      map[string]json.RawMessage `json:"tables"`
	RecordCount int                        `json:"record_count"`
	Error       string                     `json:"error,omitempty"`
}

type ctxKey int

const accessTokenKey ctxKey = iota

// WithAccessToken attaches the bearer token used for requests made with ctx.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey, token)
}

// AccessToken returns the token attached with WithAccessToken, if any.
func AccessToken(ctx context.Context) string {
	s, _ := ctx.Value(accessTokenKey).(string)
	return s
}
