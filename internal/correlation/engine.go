// Package correlation runs the periodic rule-evaluation cycle: load
// enabled rules, dispatch by rule_type against the document store, create
// offences, and invoke the response orchestrator inline per offence.
// Grounded on correlation/services.py's run_correlation_cycle, generalized
// from its if/elif rule_type chain into a registry so new rule types add a
// handler without touching the cycle loop.
package correlation

import (
	"context"
	"fmt"
	"time"

	"netedge-siem/internal/docstore"
	"netedge-siem/internal/model"
	"netedge-siem/pkg/logger"
	"netedge-siem/pkg/redisutil"
)

const (
	syslogEventsIndexPattern  = "siem-syslog-events-*"
	netflowEventsIndexPattern = "siem-netflow-events-*"
	iocsIndexPattern          = "siem-iocs-*"
)

// RuleStore is the relational-store dependency for loading enabled rules.
// Implemented by internal/relstore; declared here as a narrow interface to
// avoid a correlation→relstore→correlation import cycle.
type RuleStore interface {
	EnabledCorrelationRules(ctx context.Context, limit int) ([]model.CorrelationRule, error)
}

// OffenceStore persists offences created by the engine.
type OffenceStore interface {
	CreateOffence(ctx context.Context, o model.Offence) (model.Offence, error)
}

// ResponseInvoker runs the response orchestrator for a created offence.
// Implemented by internal/response.
type ResponseInvoker interface {
	ExecuteForOffence(ctx context.Context, offence model.Offence) error
}

// Handler evaluates one rule for the current cycle, returning the offences
// it produced. Registered per rule_type in the engine's dispatch table.
type Handler func(ctx context.Context, e *Engine, rule model.CorrelationRule) ([]model.Offence, error)

// Engine runs correlation cycles.
type Engine struct {
	store     *docstore.Client
	rules     RuleStore
	offences  OffenceStore
	responder ResponseInvoker
	lock      *redisutil.CycleLock
	log       logger.Logger

	handlers map[string]Handler
}

// New creates a correlation engine. lock may be nil to disable single-flight
// coalescing (e.g. in tests).
func New(store *docstore.Client, rules RuleStore, offences OffenceStore, responder ResponseInvoker, lock *redisutil.CycleLock, log logger.Logger) *Engine {
	e := &Engine{store: store, rules: rules, offences: offences, responder: responder, lock: lock, log: log}
	e.handlers = map[string]Handler{
		model.RuleTypeIOCMatchIP:               handleIOCMatchIP,
		model.RuleTypeThresholdLoginFailures:    handleThresholdLoginFailures,
		model.RuleTypeThresholdDataExfiltration: handleThresholdDataExfiltration,
	}
	return e
}

// CycleLockKey is the Redis key the engine's cycle lock is held under,
// exported so the caller wiring redisutil.NewCycleLock uses the same key.
const CycleLockKey = "correlation:cycle:lock"

// RunCycle executes one correlation cycle: loads enabled rules, dispatches
// each to its registered handler, persists offences, and invokes the
// response orchestrator for every one created (spec §4.8: unconditional on
// rule type, including threshold rules).
//
// If a lock is configured and already held, RunCycle returns immediately
// without error — an overlapping trigger is coalesced, not queued.
func (e *Engine) RunCycle(ctx context.Context) error {
	if e.lock != nil {
		acquired, err := e.lock.TryAcquire(ctx)
		if err != nil {
			return fmt.Errorf("acquire cycle lock: %w", err)
		}
		if !acquired {
			e.log.Info("correlation cycle already running, skipping")
			return nil
		}
		defer func() {
			if err := e.lock.Release(ctx); err != nil {
				e.log.Warn("failed to release cycle lock", "error", err)
			}
		}()
	}

	started := time.Now().UTC()
	e.log.Info("correlation cycle starting", "started_at", started)

	rules, err := e.rules.EnabledCorrelationRules(ctx, 1000)
	if err != nil {
		return fmt.Errorf("load enabled correlation rules: %w", err)
	}
	if len(rules) == 0 {
		e.log.Info("no active correlation rules, skipping cycle")
		return nil
	}
	e.log.Info("loaded active correlation rules", "count", len(rules))

	for _, rule := range rules {
		handler, ok := e.handlers[rule.RuleType]
		if !ok {
			e.log.Warn("rule type not implemented", "rule", rule.Name, "rule_type", rule.RuleType)
			continue
		}

		offences, err := handler(ctx, e, rule)
		if err != nil {
			e.log.Error("rule evaluation failed", "rule", rule.Name, "rule_type", rule.RuleType, "error", err)
			continue
		}

		for _, offence := range offences {
			created, err := e.offences.CreateOffence(ctx, offence)
			if err != nil {
				e.log.Error("failed to persist offence", "rule", rule.Name, "error", err)
				continue
			}
			e.log.Info("created offence", "id", created.ID, "title", created.Title, "severity", created.Severity)

			if e.responder == nil {
				continue
			}
			if err := e.responder.ExecuteForOffence(ctx, created); err != nil {
				e.log.Error("response execution failed for offence", "offence_id", created.ID, "error", err)
			}
		}
	}

	e.log.Info("correlation cycle finished", "duration", time.Since(started))
	return nil
}
