package onboard

import (
	"go.uber.org/zap"

	"github.com/agentgate-io/agentgate-engine/pkg/vault"
)

type HttpHandler struct {
	logger  *zap.Logger
	db      Database
	vault   vault.SourceConfig
	service *Service
	syncer  SyncTrigger
}

func NewHttpHandler(logger *zap.Logger, db Database, v vault.SourceConfig, service *Service, syncer SyncTrigger) *HttpHandler {
	return &HttpHandler{
		logger:  logger.Named("onboard"),
		db:      db,
		vault:   v,
		service: service,
		syncer:  syncer,
	}
}
