package liquidhandling

import (
	"context"
	"fmt"

	"graphmix/internal/core"
	"graphmix/internal/ctxlog"
	"graphmix/pkg/protocol"

	"github.com/google/uuid"
)

// Plan turns a solved protocol into single transfers in topological order.
// Each transfer allows tip reuse when reuseTip is set.
func Plan(p *protocol.Protocol, reuseTip bool) ([]SingleTransfer, error) {
	moves, err := p.Transfers()
	if err != nil {
		return nil, err
	}
	out := make([]SingleTransfer, 0, len(moves))
	for _, m := range moves {
		src, err := p.Node(m.From)
		if err != nil {
			return nil, err
		}
		dst, err := p.Node(m.To)
		if err != nil {
			return nil, err
		}
		out = append(out, SingleTransfer{
			Request:     Request{Source: src, ReuseTip: reuseTip},
			Volume:      m.Volume,
			Destination: dst,
		})
	}
	return out, nil
}

// RunOptions configures Run.
type RunOptions struct {
	ReuseTip bool
	Metrics  core.MetricsRecorder
}

// Report summarises a finished run.
type Report struct {
	RunID     string
	Transfers int
}

// Run plans p, sets the robot up and executes every transfer. The run is
// observed as one liquidhandling.run operation.
func Run(ctx context.Context, h *Handler, p *protocol.Protocol, opts RunOptions) (Report, error) {
	rep := Report{RunID: uuid.NewString()}
	logger := ctxlog.FromContext(ctx).With("run", rep.RunID)
	ctx = ctxlog.WithLogger(ctx, logger)

	err := core.Measure(ctx, opts.Metrics, core.OpHandlerRun, func() error {
		plan, err := Plan(p, opts.ReuseTip)
		if err != nil {
			return err
		}
		if err := h.Setup(ctx); err != nil {
			return err
		}
		for i, t := range plan {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := h.Transfer(ctx, t); err != nil {
				return fmt.Errorf("transfer %d %s -> %s: %w", i+1, t.Source.Name(), t.Destination.Name(), err)
			}
			rep.Transfers++
		}
		return h.DropTip(ctx)
	})
	if err != nil {
		logger.ErrorContext(ctx, "run failed", "transfers", rep.Transfers, "err", err)
		return rep, err
	}
	logger.InfoContext(ctx, "run finished", "transfers", rep.Transfers)
	return rep, nil
}
