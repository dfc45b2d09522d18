package inventory

import (
	"context"

	"go.uber.org/zap"
)

// compensationLog accumulates undo actions as the steps of a multi-item
// operation succeed. On failure the actions run in reverse order,
// best-effort: a failing undo is logged and the rest still run, since
// stopping would strand even more holds.
type compensationLog struct {
	actions []func(ctx context.Context) error
	log     *zap.Logger
}

func (c *compensationLog) add(fn func(ctx context.Context) error) {
	c.actions = append(c.actions, fn)
}

func (c *compensationLog) run(ctx context.Context) {
	for i := len(c.actions) - 1; i >= 0; i-- {
		if err := c.actions[i](ctx); err != nil {
			c.log.Error("compensation step failed", zap.Int("step", i), zap.Error(err))
		}
	}
}
