package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRunSagaCompensatesInReverse(t *testing.T) {
	var log []string
	step := func(name string, fail bool) sagaStep {
		return sagaStep{
			name: name,
			execute: func(context.Context) error {
				log = append(log, "do "+name)
				if fail {
					return errors.New(name + " failed")
				}
				return nil
			},
			compensate: func(context.Context) error {
				log = append(log, "undo "+name)
				return nil
			},
		}
	}

	err := runSaga(context.Background(), zap.NewNop(), "ORD1", []sagaStep{
		step("a", false),
		step("b", false),
		step("c", true),
		step("d", false),
	})

	assert.EqualError(t, err, "c failed")
	assert.Equal(t, []string{"do a", "do b", "do c", "undo b", "undo a"}, log)
}

func TestRunSagaKeepsCompensatingAfterFailure(t *testing.T) {
	undone := 0
	steps := []sagaStep{
		{name: "a", key: "line:0", execute: func(context.Context) error { return nil }, compensate: func(context.Context) error { undone++; return nil }},
		{name: "b", key: "line:1", execute: func(context.Context) error { return nil }, compensate: func(context.Context) error { return errors.New("boom") }},
		{name: "c", execute: func(context.Context) error { return errors.New("stop") }},
	}

	err := runSaga(context.Background(), zap.NewNop(), "ORD2", steps)
	assert.EqualError(t, err, "stop")
	assert.Equal(t, 1, undone)

	var stranded *compensationError
	if assert.ErrorAs(t, err, &stranded) {
		assert.Equal(t, []string{"line:1"}, stranded.unreleased)
	}
}

func TestRunSagaCompensatesAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var compensateErr error
	steps := []sagaStep{
		{
			name:    "a",
			execute: func(context.Context) error { return nil },
			compensate: func(ctx context.Context) error {
				compensateErr = ctx.Err()
				return nil
			},
		},
		{name: "b", execute: func(context.Context) error { cancel(); return context.Canceled }},
	}

	err := runSaga(ctx, zap.NewNop(), "ORD3", steps)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, compensateErr)
}
