package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/agentgate-io/agentgate-engine/pkg/types"
)

const defaultPageSize = 100

// RemoteEntity is one remote object as reported by an external service,
// identified by its stable external id. An entity the service returned but
// that could not be decoded carries DecodeErr instead of failing the page:
// one malformed object must not abort a sync run.
type RemoteEntity struct {
	ExternalID string
	EntityType string
	UpdatedAt  time.Time
	Payload    json.RawMessage

	DecodeErr error
}

// Source exposes an external service to the sync reconciler and the health
// monitor without leaking service-specific API shapes.
type Source interface {
	// ListEntities returns one page of entities of entityType. When since is
	// non-nil only entities updated after it are returned. The bool result
	// reports whether more pages remain.
	ListEntities(ctx context.Context, entityType string, since *time.Time, page int) ([]RemoteEntity, bool, error)

	// CheckAuth performs a cheap authenticated probe against the service.
	CheckAuth(ctx context.Context) error

	EntityTypes() []string
}

type restSource struct {
	adapter  *Adapter
	paths    map[string]string
	authPath string
}

// NewSource builds a Source for a known service on top of its adapter.
func NewSource(a *Adapter) (Source, error) {
	routes, ok := serviceRoutes[a.Service()]
	if !ok {
		return nil, fmt.Errorf("unknown service %q", a.Service())
	}
	return &restSource{adapter: a, paths: routes.entities, authPath: routes.auth}, nil
}

type routeTable struct {
	auth     string
	entities map[string]string
}

var serviceRoutes = map[string]routeTable{
	"github": {
		auth: "/user",
		entities: map[string]string{
			"repository":   "/user/repos",
			"pull_request": "/user/pulls",
			"issue":        "/user/issues",
		},
	},
	"vercel": {
		auth: "/v2/user",
		entities: map[string]string{
			"deployment": "/v6/deployments",
			"project":    "/v9/projects",
		},
	},
	"figma": {
		auth: "/v1/me",
		entities: map[string]string{
			"file": "/v1/files",
		},
	},
	"slack": {
		auth: "/api/auth.test",
		entities: map[string]string{
			"channel": "/api/conversations.list",
		},
	},
	"mastodon": {
		auth: "/api/v1/accounts/verify_credentials",
		entities: map[string]string{
			"status": "/api/v1/statuses",
		},
	},
}

// BaseURLs maps each supported service to its API host. Overridable in tests
// through the registry.
var BaseURLs = map[string]string{
	"github":   "https://api.github.com",
	"vercel":   "https://api.vercel.com",
	"figma":    "https://api.figma.com",
	"slack":    "https://slack.com",
	"mastodon": "https://mastodon.social",
}

func (s *restSource) EntityTypes() []string {
	out := make([]string, 0, len(s.paths))
	for t := range s.paths {
		out = append(out, t)
	}
	return out
}

func (s *restSource) CheckAuth(ctx context.Context) error {
	_, err := s.adapter.Call(ctx, Request{Method: http.MethodGet, Path: s.authPath})
	return err
}

func (s *restSource) ListEntities(ctx context.Context, entityType string, since *time.Time, page int) ([]RemoteEntity, bool, error) {
	path, ok := s.paths[entityType]
	if !ok {
		return nil, false, types.Faultf(types.KindSync,
			"service %s does not track entity type %s", s.adapter.Service(), entityType)
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(defaultPageSize))
	if since != nil {
		query.Set("since", since.UTC().Format(time.RFC3339))
	}

	resp, err := s.adapter.Call(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return nil, false, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return nil, false, types.WrapFault(types.KindSync, "decode entity page", err)
	}

	entities := make([]RemoteEntity, 0, len(raw))
	for _, item := range raw {
		entity, err := decodeEntity(entityType, item)
		if err != nil {
			entities = append(entities, RemoteEntity{
				EntityType: entityType,
				Payload:    item,
				DecodeErr:  err,
			})
			continue
		}
		entities = append(entities, entity)
	}

	return entities, len(raw) == defaultPageSize, nil
}

func decodeEntity(entityType string, item json.RawMessage) (RemoteEntity, error) {
	var envelope struct {
		ID        json.Number `json:"id"`
		UpdatedAt time.Time   `json:"updated_at"`
	}
	if err := json.Unmarshal(item, &envelope); err != nil {
		return RemoteEntity{}, types.WrapFault(types.KindSync, "decode entity envelope", err)
	}
	if envelope.ID.String() == "" {
		return RemoteEntity{}, types.NewFault(types.KindSync, "entity has no id")
	}

	return RemoteEntity{
		ExternalID: envelope.ID.String(),
		EntityType: entityType,
		UpdatedAt:  envelope.UpdatedAt,
		Payload:    item,
	}, nil
}
