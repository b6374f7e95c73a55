package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lodestar-hq/lodestar/pkg/logger"
	"github.com/lodestar-hq/lodestar/pkg/pipeline"
)

// TriggerMsg is the payload collectors publish after ingesting new
// artifacts. Reason is free text for the logs; Requested carries an
// optional batch-size hint that engines may ignore.
type TriggerMsg struct {
	Reason    string `json:"reason,omitempty"`
	Source    string `json:"source,omitempty"`
	Requested int    `json:"requested,omitempty"`
}

// ProcessTrigger runs the engine mapped to queueName. Unknown queues
// fail the message so it lands in the dead-letter queue instead of
// silently draining.
func ProcessTrigger(ctx context.Context, p *pipeline.Pipeline, queueName string, body []byte) error {
	var msg TriggerMsg
	if len(body) > 0 {
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("unmarshal trigger: %w", err)
		}
	}
	logger.Info("[Queue] Trigger received", "queue", queueName, "reason", msg.Reason, "source", msg.Source)

	runner := func(r pipeline.Runner) error {
		if r == nil {
			return fmt.Errorf("engine for %s not configured", queueName)
		}
		stats, err := r.RunBatch(ctx)
		if err != nil {
			return err
		}
		logger.Info("[Queue] Trigger handled",
			"queue", queueName,
			"processed", stats.Processed,
			"errors", stats.Errors)
		return nil
	}

	switch queueName {
	case ScoreQueue:
		return runner(p.Scoring)
	case LinkQueue:
		return runner(p.Relations)
	case ResolveQueue:
		return runner(p.Identity)
	case TopicsQueue:
		return runner(p.Topics)
	case PipelineQueue:
		report := p.Run(ctx)
		if report.Total.Errors > 0 {
			logger.Warn("[Queue] Pipeline run finished with item errors", "errors", report.Total.Errors)
		}
		return nil
	default:
		return fmt.Errorf("no handler for queue %s", queueName)
	}
}
