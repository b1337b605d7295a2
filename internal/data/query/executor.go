package query

import (
	"context"
	"time"

	"github.com/haroldsh/fulcrum/internal/data/schema"
	"github.com/haroldsh/fulcrum/internal/metrics"
)

// Engine ties the optimizer to the two executor strategies: it prefers
// the native SqlSchemaJoinExecutor when every referenced schema shares
// one SQL connection, and otherwise falls back to the in-process
// ApplicationJoinExecutor's uuid intersection (spec §4.G.3's final
// line).
type Engine struct {
	optimizer *Optimizer
	backends  *BackendRegistry
	schemas   *schema.Registry
	sqlJoin   *SqlSchemaJoinExecutor
	appJoin   *ApplicationJoinExecutor
	metrics   *metrics.Metrics
}

// NewEngine wires an Engine over the given backend registry, schema
// registry and optimizer (which carries the plan and stats caches).
func NewEngine(backends *BackendRegistry, schemas *schema.Registry, optimizer *Optimizer) *Engine {
	return &Engine{
		optimizer: optimizer,
		backends:  backends,
		schemas:   schemas,
		sqlJoin:   NewSqlSchemaJoinExecutor(backends),
		appJoin:   NewApplicationJoinExecutor(backends),
		metrics:   metrics.Global(),
	}
}

// Run optimizes q and executes it with whichever strategy applies,
// returning the joined rows.
func (e *Engine) Run(ctx context.Context, q Query) ([]CrossSchemaResult, error) {
	start := time.Now()
	plan := e.optimizer.Optimize(q, true)

	if e.sqlJoin.CanExecute(plan) {
		results, err := e.sqlJoin.Execute(ctx, plan)
		e.recordQuery("native_sql", err, start)
		return results, err
	}

	rootDesc, err := e.schemas.Get(q.RootSchema)
	if err != nil {
		e.recordQuery("application_join", err, start)
		return nil, err
	}
	pkFieldOf := make(map[string]string, len(plan.ReorderedJoins))
	for _, j := range plan.ReorderedJoins {
		desc, err := e.schemas.Get(j.Schema)
		if err != nil {
			e.recordQuery("application_join", err, start)
			return nil, err
		}
		pkFieldOf[j.Schema] = desc.PrimaryKeyField
	}

	results, err := e.appJoin.Execute(ctx, plan, rootDesc.PrimaryKeyField, pkFieldOf)
	e.recordQuery("application_join", err, start)
	return results, err
}

func (e *Engine) recordQuery(strategy string, err error, start time.Time) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	e.metrics.RecordDataQuery(strategy, status, time.Since(start))
}

// Plan exposes the optimizer's plan for q without executing it, useful
// for diagnostics/recommendation surfacing.
func (e *Engine) Plan(q Query) Plan {
	return e.optimizer.Optimize(q, true)
}
