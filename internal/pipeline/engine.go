package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Engine orchestrates pipeline runs.
type Engine struct {
	env      *Env
	reg      *Registry
	manifest *Manifest
}

// RunOpts configures which steps to run.
type RunOpts struct {
	Phase *Phase   // restrict to a specific phase
	Steps []string // restrict to specific step names
}

// NewEngine creates a new pipeline engine.
func NewEngine(env *Env, reg *Registry, manifest *Manifest) *Engine {
	return &Engine{
		env:      env,
		reg:      reg,
		manifest: manifest,
	}
}

// Run executes the selected steps in order. A failing step is logged and
// recorded, and the run continues with the next step; the returned error
// reports how many steps failed.
func (e *Engine) Run(ctx context.Context, opts RunOpts) error {
	log := zap.L().With(zap.String("component", "pipeline.engine"))

	steps, err := e.reg.Select(opts.Phase, opts.Steps)
	if err != nil {
		return err
	}

	if len(steps) == 0 {
		log.Info("no steps selected")
		return nil
	}

	runID := uuid.NewString()
	log = log.With(zap.String("run_id", runID))
	log.Info("selected steps", zap.Int("count", len(steps)))

	var done, failed int

	for _, s := range steps {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		stepLog := log.With(zap.String("step", s.Name()), zap.String("phase", s.Phase().String()))

		stepLog.Info("starting step")
		entryID, err := e.manifest.Start(ctx, runID, s.Name())
		if err != nil {
			return eris.Wrapf(err, "engine: start manifest entry for %s", s.Name())
		}

		start := time.Now()
		result, err := s.Run(ctx, e.env)
		elapsed := time.Since(start)

		if err != nil {
			stepLog.Error("step failed", zap.Error(err), zap.Duration("elapsed", elapsed))
			if logErr := e.manifest.Fail(ctx, entryID, err.Error()); logErr != nil {
				stepLog.Error("failed to record step failure", zap.Error(logErr))
			}
			failed++
			continue
		}

		if err := e.manifest.Complete(ctx, entryID, result); err != nil {
			stepLog.Error("failed to record step completion", zap.Error(err))
		}

		stepLog.Info("step complete",
			zap.Int64("rows", result.Rows),
			zap.Strings("outputs", result.Outputs),
			zap.Duration("elapsed", elapsed),
		)
		done++
	}

	log.Info("engine run complete",
		zap.Int("done", done),
		zap.Int("failed", failed),
	)
	if failed > 0 {
		return eris.Errorf("pipeline: %d of %d steps failed", failed, len(steps))
	}
	return nil
}
