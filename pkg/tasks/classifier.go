package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/agentgate-io/agentgate-engine/pkg/audit"
	"github.com/agentgate-io/agentgate-engine/pkg/config"
	"github.com/agentgate-io/agentgate-engine/pkg/events"
	"github.com/agentgate-io/agentgate-engine/pkg/onboard"
)

// proposal is a task template derived from an inbound event.
type proposal struct {
	Type        string
	Baseline    int
	Destructive bool
	Magnitude   int
	Retryable   bool
	Cost        decimal.Decimal
}

// proposalFor maps event types to actionable task templates. Events with no
// template are observed but produce no task.
var eventProposals = map[string]proposal{
	"pull_request":     {Type: "post_message", Baseline: 1, Magnitude: 1, Retryable: true, Cost: decimal.RequireFromString("0.01")},
	"issues":           {Type: "post_message", Baseline: 1, Magnitude: 1, Retryable: true, Cost: decimal.RequireFromString("0.01")},
	"push":             {Type: "update_entity", Baseline: 1, Magnitude: 1, Retryable: true, Cost: decimal.RequireFromString("0.01")},
	"deployment.error": {Type: "redeploy", Baseline: 3, Magnitude: 10, Cost: decimal.RequireFromString("0.05")},
	"FILE_UPDATE":      {Type: "update_entity", Baseline: 1, Magnitude: 1, Retryable: true, Cost: decimal.RequireFromString("0.01")},
	"message":          {Type: "post_message", Baseline: 1, Magnitude: 1, Retryable: true, Cost: decimal.RequireFromString("0.01")},
}

// Classifier turns inbound events into risk-scored tasks and applies the
// approval policy: low and medium auto-approve, high and critical wait for a
// human decision.
type Classifier struct {
	logger    *zap.Logger
	db        Database
	auditDB   audit.Database
	onboardDB onboard.Database
	bus       *events.Bus
	risk      config.Risk
}

func NewClassifier(logger *zap.Logger, db Database, auditDB audit.Database,
	onboardDB onboard.Database, bus *events.Bus, risk config.Risk) *Classifier {
	return &Classifier{
		logger:    logger.Named("classifier"),
		db:        db,
		auditDB:   auditDB,
		onboardDB: onboardDB,
		bus:       bus,
		risk:      risk,
	}
}

// riskScore is additive over the declared heuristics.
func riskScore(p proposal, environment string) int {
	score := p.Baseline
	if environment == "production" {
		score += 2
	}
	if p.Destructive {
		score += 3
	}
	switch {
	case p.Magnitude >= 100:
		score += 2
	case p.Magnitude >= 10:
		score++
	}
	return score
}

func (c *Classifier) riskFor(score int) RiskLevel {
	switch {
	case score >= c.risk.CriticalAt:
		return RiskLevelCritical
	case score >= c.risk.HighAt:
		return RiskLevelHigh
	case score >= c.risk.MediumAt:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// HandleEvent is the bus subscriber. Duplicate deliveries collapse on the
// task's source event id, so redelivered events never produce a second task.
func (c *Classifier) HandleEvent(ctx context.Context, event events.Event) error {
	p, ok := eventProposals[event.Type]
	if !ok {
		return nil
	}

	integration, ok := c.integrationFor(event.Service)
	if !ok {
		c.logger.Debug("no connected integration for event",
			zap.String("service", event.Service), zap.String("type", event.Type))
		return nil
	}

	environment := environmentOf(event.Payload)
	score := riskScore(p, environment)
	risk := c.riskFor(score)

	task := Task{
		ID:            uuid.New(),
		IntegrationID: integration.ID,
		Service:       event.Service,
		Type:          p.Type,
		RiskLevel:     risk,
		Status:        TaskStatusPending,
		SourceEventID: event.DedupeKey(),
		Input:         event.Payload,
		Cost:          p.Cost,
		Environment:   environment,
		Destructive:   p.Destructive,
		Magnitude:     p.Magnitude,
		Retryable:     p.Retryable,
	}

	autoApproved := risk == RiskLevelLow || risk == RiskLevelMedium
	if autoApproved {
		task.Status = TaskStatusApproved
		task.ApprovedBy = "policy"
	}

	created, err := c.db.CreateTask(&task)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	err = c.auditDB.AppendDetail(task.ID, audit.EntryTypeClassification, "engine", map[string]any{
		"score":       score,
		"riskLevel":   risk,
		"environment": environment,
		"destructive": p.Destructive,
		"magnitude":   p.Magnitude,
		"taskType":    p.Type,
		"sourceEvent": event.DedupeKey(),
	})
	if err != nil {
		return err
	}

	if !autoApproved {
		c.logger.Info("task pending approval",
			zap.String("task_id", task.ID.String()),
			zap.String("risk", string(risk)))
		return nil
	}

	err = c.auditDB.AppendDetail(task.ID, audit.EntryTypeApproval, "policy", map[string]any{
		"approvedBy": "policy",
		"riskLevel":  risk,
	})
	if err != nil {
		return err
	}

	c.publishApproved(ctx, task)
	return nil
}

func (c *Classifier) publishApproved(ctx context.Context, task Task) {
	c.bus.Publish(ctx, events.TopicTasksApproved, events.Event{
		ID:         uuid.New(),
		Service:    task.Service,
		Type:       "task_approved",
		ExternalID: task.ID.String(),
		ReceivedAt: time.Now(),
	})
}

func (c *Classifier) integrationFor(service string) (*onboard.Integration, bool) {
	integrations, err := c.onboardDB.ListIntegrationsByService(service)
	if err != nil {
		c.logger.Error("list integrations", zap.Error(err))
		return nil, false
	}
	for i := range integrations {
		if integrations[i].Status == onboard.IntegrationStatusConnected {
			return &integrations[i], true
		}
	}
	return nil, false
}

func environmentOf(payload json.RawMessage) string {
	var envelope struct {
		Environment string `json:"environment"`
		Target      string `json:"target"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil {
		if envelope.Environment != "" {
			return envelope.Environment
		}
		if envelope.Target != "" {
			return envelope.Target
		}
	}
	return "development"
}
