package onboard

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/agentgate-io/agentgate-engine/pkg/internal/httpserver"
	"github.com/agentgate-io/agentgate-engine/pkg/onboard/api"
	"github.com/agentgate-io/agentgate-engine/pkg/vault"
)

type capturingSyncTrigger struct {
	ctxCh chan context.Context
}

func (s *capturingSyncTrigger) TriggerFullSync(ctx context.Context, integrationID uuid.UUID) (bool, error) {
	s.ctxCh <- ctx
	return true, nil
}

func (s *capturingSyncTrigger) Forget(ctx context.Context, integrationID uuid.UUID) error {
	return nil
}

func setupHandlerServer(t *testing.T) (*httptest.Server, Database, *capturingSyncTrigger) {
	t.Helper()

	orm, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)

	db := NewDatabase(orm)
	require.NoError(t, db.Initialize())

	v := vault.NewInMemoryVaultSourceConfig()
	service := NewService(zap.NewNop(), db, v, "fallback-secret")
	trigger := &capturingSyncTrigger{ctxCh: make(chan context.Context, 1)}
	handler := NewHttpHandler(zap.NewNop(), db, v, service, trigger)

	server := httptest.NewServer(httpserver.Register(zap.NewNop(), handler))
	t.Cleanup(server.Close)

	return server, db, trigger
}

func TestConnectStartsFullSyncThatOutlivesTheRequest(t *testing.T) {
	server, db, trigger := setupHandlerServer(t)

	body, err := json.Marshal(api.ConnectRequest{
		Service:     "github",
		Credentials: map[string]any{"token": "ghp_test"},
	})
	require.NoError(t, err)

	resp, err := http.Post(server.URL+"/api/v1/integrations", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created api.Integration
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	stored, err := db.GetIntegration(created.ID)
	require.NoError(t, err)
	require.Equal(t, IntegrationStatusConnected, stored.Status)

	var syncCtx context.Context
	select {
	case syncCtx = <-trigger.ctxCh:
	case <-time.After(2 * time.Second):
		t.Fatal("initial full sync was never triggered")
	}

	// The request context dies when the 201 goes out; the sync that Connect
	// kicked off must keep a live context past that point.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, syncCtx.Err())
}
