package engine

import (
	"context"
	"time"

	"pieces/internal/piece"
	"pieces/internal/types"
)

// Poller runs enabled polling instances on a fixed interval, one at a time.
type Poller struct {
	Engine    *Engine
	Instances []*types.InstanceDef
	Interval  time.Duration
	// OnResult, when set, receives every successful run that emitted items.
	OnResult func(*types.TriggerResult)
}

// Start polls until ctx is cancelled. The first poll happens after one interval.
func (p *Poller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	p.Engine.Logger.WithField("interval", p.Interval.String()).Info("poller started")
	for {
		select {
		case <-ctx.Done():
			p.Engine.Logger.Info("poller stopped")
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce runs every enabled polling instance once and returns the results.
// Failures are logged by the engine and do not stop the remaining instances.
func (p *Poller) PollOnce(ctx context.Context) []*types.TriggerResult {
	var results []*types.TriggerResult
	for _, inst := range p.Instances {
		if ctx.Err() != nil {
			break
		}

		trigger, err := p.Engine.Registry.Trigger(inst.Piece, inst.Trigger)
		if err != nil || trigger.Meta().Strategy != piece.StrategyPolling {
			continue
		}
		enabled, err := p.Engine.IsEnabled(ctx, inst)
		if err != nil {
			p.Engine.Logger.WithError(err).WithField("instance", inst.Name).Warn("reading instance state")
			continue
		}
		if !enabled {
			continue
		}

		result, err := p.Engine.Run(ctx, inst, nil)
		results = append(results, result)
		if err == nil && len(result.Items) > 0 && p.OnResult != nil {
			p.OnResult(result)
		}
	}
	return results
}
