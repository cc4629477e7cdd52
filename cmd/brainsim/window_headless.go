//go:build headless

package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/brainsim/runtime"
	"github.com/wippyai/brainsim/scheduler"
	"github.com/wippyai/brainsim/sdk/controller"
)

const windowSupported = false

// window is unavailable in headless builds; -window is rejected before one
// is created.
type window struct{}

func newWindow(*controller.Publisher, bool, *zap.Logger) *window { return &window{} }

func (w *window) observer() scheduler.Observer { return scheduler.Funcs{} }

func (w *window) run(context.Context, *runtime.Simulator) error { return nil }
