package tasks

import (
	"go.uber.org/zap"
)

type HttpHandler struct {
	logger   *zap.Logger
	db       Database
	gate     *Gate
	rollback *RollbackManager
}

func NewHttpHandler(logger *zap.Logger, db Database, gate *Gate, rollback *RollbackManager) *HttpHandler {
	return &HttpHandler{
		logger:   logger.Named("tasks"),
		db:       db,
		gate:     gate,
		rollback: rollback,
	}
}
