// Package pipeline sequences the discovery engines within one batch
// run: scoring, relationship detection, identity resolution, and topic
// evolution on a slower cadence.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lodestar-hq/lodestar/pkg/common"
	"github.com/lodestar-hq/lodestar/pkg/logger"
)

// Runner is one engine's batch entrypoint.
type Runner interface {
	RunBatch(ctx context.Context) (common.RunStats, error)
}

// Report aggregates per-engine stats for one pipeline run.
type Report struct {
	Run      uint64                     `json:"run"`
	Started  time.Time                  `json:"started"`
	Duration time.Duration              `json:"duration"`
	Engines  map[string]common.RunStats `json:"engines"`
	Total    common.RunStats            `json:"total"`
}

// Pipeline runs the engines sequentially. Engines left nil are skipped,
// so a worker can be configured to run a subset.
type Pipeline struct {
	Scoring   Runner
	Relations Runner
	Identity  Runner
	Topics    Runner

	// TopicCadence runs the topic engine every Nth run. Topic drift is
	// slow relative to artifact churn.
	TopicCadence uint64

	runs atomic.Uint64
}

// Run executes one full pipeline pass. Engine-level failures are
// recorded in the report and do not stop the following engines.
func (p *Pipeline) Run(ctx context.Context) Report {
	run := p.runs.Add(1)
	report := Report{
		Run:     run,
		Started: time.Now().UTC(),
		Engines: make(map[string]common.RunStats),
	}

	logger.Info("[Pipeline] Run starting", "run", run)

	p.runEngine(ctx, &report, "scoring", p.Scoring)
	p.runEngine(ctx, &report, "relations", p.Relations)
	p.runEngine(ctx, &report, "identity", p.Identity)

	cadence := p.TopicCadence
	if cadence == 0 {
		cadence = 1
	}
	if run%cadence == 0 {
		p.runEngine(ctx, &report, "topics", p.Topics)
	}

	report.Duration = time.Since(report.Started)
	logger.Info("[Pipeline] Run finished",
		"run", run,
		"duration", report.Duration,
		"processed", report.Total.Processed,
		"scored", report.Total.Scored,
		"linked", report.Total.Linked,
		"merged", report.Total.Merged,
		"events", report.Total.EventsEmitted,
		"errors", report.Total.Errors)
	return report
}

func (p *Pipeline) runEngine(ctx context.Context, report *Report, name string, engine Runner) {
	if engine == nil {
		return
	}
	if ctx.Err() != nil {
		return
	}

	stats, err := engine.RunBatch(ctx)
	if err != nil {
		stats.Errors++
		logger.Error("[Pipeline] Engine failed", "engine", name, "err", err)
	}
	report.Engines[name] = stats
	report.Total.Add(stats)
}
