package orders

import (
	"context"

	"go.uber.org/zap"
)

// sagaStep is one unit of work with the action that undoes it. key names the
// reservation the step holds, matching the keys in models.ReleaseProgress.
type sagaStep struct {
	name       string
	key        string
	execute    func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// compensationError is returned when a step failed and some of the steps
// before it could not be undone. It unwraps to the step failure.
type compensationError struct {
	err        error
	unreleased []string
}

func (e *compensationError) Error() string { return e.err.Error() }

func (e *compensationError) Unwrap() error { return e.err }

// runSaga executes steps in order. When a step fails, every step that already
// succeeded is compensated in reverse order and the original error is returned.
func runSaga(ctx context.Context, logger *zap.Logger, orderNumber string, steps []sagaStep) error {
	done := make([]sagaStep, 0, len(steps))

	for _, step := range steps {
		logger.Debug("[ORDER] executing step", zap.String("orderNumber", orderNumber), zap.String("step", step.name))
		if err := step.execute(ctx); err != nil {
			logger.Warn("[ORDER] step failed, compensating",
				zap.String("orderNumber", orderNumber),
				zap.String("step", step.name),
				zap.Error(err),
			)
			if failed := rollback(context.WithoutCancel(ctx), logger, orderNumber, done); len(failed) > 0 {
				return &compensationError{err: err, unreleased: failed}
			}
			return err
		}
		done = append(done, step)
	}
	return nil
}

// rollback undoes steps in reverse and returns the keys it could not undo.
func rollback(ctx context.Context, logger *zap.Logger, orderNumber string, steps []sagaStep) []string {
	var failed []string
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		if step.compensate == nil {
			continue
		}
		if err := step.compensate(ctx); err != nil {
			logger.Error("[ORDER] CRITICAL: compensation failed",
				zap.String("orderNumber", orderNumber),
				zap.String("step", step.name),
				zap.Error(err),
			)
			failed = append(failed, step.key)
		}
	}
	return failed
}
