// Package aftercommit collects best-effort side effects during a transaction and runs
// them once it has committed. A failing effect is logged and never affects the others.
package aftercommit

import (
	"context"
	"fmt"

	"paintball-ticketing/internal/logger"
)

type Effect struct {
	Name string
	Run  func(ctx context.Context) error
}

type Effects struct {
	list      []Effect
	log       *logger.Logger
	onFailure func(name string)
}

// New returns an empty list. onFailure may be nil; it is called once per failed effect.
func New(log *logger.Logger, onFailure func(name string)) *Effects {
	return &Effects{log: log, onFailure: onFailure}
}

func (e *Effects) Add(name string, fn func(ctx context.Context) error) {
	e.list = append(e.list, Effect{Name: name, Run: fn})
}

func (e *Effects) Len() int {
	return len(e.list)
}

// Run executes every effect in order and returns how many failed. The request
// context's cancellation is dropped so a client hanging up does not skip effects.
func (e *Effects) Run(ctx context.Context) int {
	ctx = context.WithoutCancel(ctx)
	failed := 0
	for _, effect := range e.list {
		if err := e.runOne(ctx, effect); err != nil {
			failed++
			e.log.Warn("AFTERCOMMIT", fmt.Sprintf("effect %s failed: %v", effect.Name, err))
			if e.onFailure != nil {
				e.onFailure(effect.Name)
			}
		}
	}
	e.list = nil
	return failed
}

func (e *Effects) runOne(ctx context.Context, effect Effect) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return effect.Run(ctx)
}
