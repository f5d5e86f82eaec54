// Package audit records security-relevant actions to the audit log and the
// structured logger.
package audit

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/admaesmo/aiddiag/internal/domain"
	"github.com/admaesmo/aiddiag/internal/repository"
)

// Recorder persists audit events. Persistence is best effort: a failing
// audit store must not fail the authenticated operation, so failures are
// logged and swallowed.
type Recorder struct {
	repo   repository.AuditRepository
	node   *snowflake.Node
	logger *zap.Logger
}

// NewRecorder wires the recorder. repo may be nil, in which case events are
// only logged.
func NewRecorder(repo repository.AuditRepository, node *snowflake.Node, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.L()
	}
	return &Recorder{repo: repo, node: node, logger: logger}
}

// Record stores an audit event, assigning its id and timestamp.
func (r *Recorder) Record(ctx context.Context, tenantID, actor uuid.UUID, action, entity, entityID string, meta map[string]any) {
	if r == nil {
		return
	}
	event := domain.AuditEvent{
		TenantID: tenantID,
		ActorSub: actor,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		At:       time.Now().UTC(),
		Meta:     meta,
	}
	if r.node != nil {
		event.ID = r.node.Generate().Int64()
	}

	r.logger.Info("audit",
		zap.String("action", event.Action),
		zap.String("entity", event.Entity),
		zap.String("entity_id", event.EntityID),
		zap.String("tenant_id", event.TenantID.String()),
		zap.String("actor_sub", event.ActorSub.String()),
	)

	if r.repo == nil {
		return
	}
	if err := r.repo.Record(ctx, event); err != nil {
		r.logger.Warn("audit event not persisted", zap.String("action", event.Action), zap.Error(err))
	}
}
