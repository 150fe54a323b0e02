package consolidation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/strata/pkg/logger"
)

// Action performs one stage and returns the value its rollback receives.
type Action func(ctx context.Context) (any, error)

// Rollback undoes a completed stage given the value its action returned.
type Rollback func(ctx context.Context, value any) error

type undoEntry struct {
	rollback    Rollback
	value       any
	description string
}

// Transaction collects the undo log of one pipeline run.
type Transaction struct {
	ctx  context.Context
	key  string
	undo []undoEntry
}

// Key returns the key the transaction runs under.
func (tx *Transaction) Key() string {
	return tx.key
}

// Stage runs action immediately. On success the rollback, if any, is pushed on
// the undo stack together with the action's value. On failure the error is
// returned wrapped with description and nothing is pushed.
func (tx *Transaction) Stage(action Action, rollback Rollback, description string) (any, error) {
	if err := tx.ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", description, err)
	}

	value, err := action(tx.ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", description, err)
	}
	if rollback != nil {
		tx.undo = append(tx.undo, undoEntry{rollback: rollback, value: value, description: description})
	}
	return value, nil
}

// Pipeline runs staged work with ordered rollback.
type Pipeline struct {
	logger *slog.Logger
}

// NewPipeline returns a Pipeline logging rollback problems to l.
func NewPipeline(l *slog.Logger) *Pipeline {
	return &Pipeline{logger: logger.OrNop(l).With("component", "consolidation-pipeline")}
}

// Run executes work in a fresh Transaction. If work returns an error
// (including a skip) or panics, completed stages are rolled back in reverse
// order. Rollback errors are logged and never replace the original error.
func (p *Pipeline) Run(ctx context.Context, key string, work func(tx *Transaction) (any, error)) (result any, err error) {
	tx := &Transaction{ctx: ctx, key: key}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("consolidation %s panicked: %v", key, r)
			result = nil
		}
		if err != nil {
			p.unwind(ctx, tx, err)
		}
	}()

	return work(tx)
}

func (p *Pipeline) unwind(ctx context.Context, tx *Transaction, cause error) {
	if len(tx.undo) == 0 {
		return
	}

	// Undo must run even when the caller's context is already cancelled.
	undoCtx := context.WithoutCancel(ctx)
	level := slog.LevelWarn
	if errors.Is(cause, ErrSkip) {
		level = slog.LevelDebug
	}
	p.logger.Log(ctx, level, "rolling back consolidation", "key", tx.key, "stages", len(tx.undo), "cause", cause)

	for i := len(tx.undo) - 1; i >= 0; i-- {
		u := tx.undo[i]
		if rerr := u.rollback(undoCtx, u.value); rerr != nil {
			p.logger.Error("rollback failed",
				"key", tx.key,
				"stage", u.description,
				"error", rerr,
			)
		}
	}
	tx.undo = nil
}
