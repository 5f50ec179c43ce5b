// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package batch

import (
	"context"
	"fmt"
	"maps"

	"github.com/matt-FFFFFF/nipipe/internal/cancel"
	"github.com/matt-FFFFFF/nipipe/internal/ctxlog"
	"github.com/matt-FFFFFF/nipipe/internal/phase"
	"github.com/matt-FFFFFF/nipipe/internal/pipeline"
	"github.com/matt-FFFFFF/nipipe/internal/progress"
	"github.com/spf13/afero"
)

// itemPipeline runs the phases of a definition for one item, stopping at the
// first phase that does not succeed.
type itemPipeline struct {
	executor PhaseExecutor
	fs       afero.Fs
	def      *pipeline.Definition
	agg      *progress.Aggregator
	index    int
	params   map[string]string
	root     string
}

// run returns the terminal result of the item. A non-nil error means the item
// workspace could not be created and the batch must abort.
func (p *itemPipeline) run(ctx context.Context, item pipeline.Item) (*pipeline.ItemResult, error) {
	reporter := progress.FromContext(ctx)
	ctl := cancel.FromContext(ctx)
	logger := ctxlog.Logger(ctx).With("item", item.ID)

	if item.WorkDir != "" {
		if err := p.fs.MkdirAll(item.WorkDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating working directory %s: %w", item.WorkDir, err)
		}
	}

	res := &pipeline.ItemResult{
		Item:              item,
		Status:            pipeline.StatusSucceeded,
		FailingPhaseIndex: -1,
		StartedAt:         now(),
	}

	artifacts := maps.Clone(item.Artifacts)
	if artifacts == nil {
		artifacts = make(map[string]string, len(p.def.Phases))
	}

	reporter.Report(progress.Event{
		Type:     progress.EventLog,
		Item:     item.ID,
		Message:  fmt.Sprintf("=== PROCESSING: %s ===", item.DisplayName()),
		Progress: p.agg.Advance(p.index, 0),
	})

	for i, spec := range p.def.Phases {
		if (ctl != nil && ctl.StopRequested()) || ctx.Err() != nil {
			logger.Info("stop observed before phase", "phase", spec.Name)
			p.fail(res, i, spec, pipeline.FailureCancelled, -1, pipeline.FailureCancelled.Description())

			break
		}

		pos := p.agg.Advance(p.index, i)
		reporter.Report(progress.Event{
			Type:     progress.EventProgress,
			Item:     item.ID,
			Phase:    spec.Name,
			Message:  progress.Status(item.DisplayName(), spec.DisplayName(), pos),
			Progress: pos,
		})

		res.Started = true

		out := p.executor.Execute(ctx, item, spec, phase.State{
			OutputRoot: p.root,
			Params:     p.params,
			Artifacts:  maps.Clone(artifacts),
			Position:   pos,
		})

		if !out.Succeeded() {
			p.fail(res, i, spec, out.Kind, out.ExitCode, out.Detail)
			break
		}

		artifacts[spec.Name] = out.Artifact

		pos = p.agg.Advance(p.index, i+1)
		reporter.Report(progress.Event{
			Type:     progress.EventProgress,
			Item:     item.ID,
			Phase:    spec.Name,
			Message:  progress.Status(item.DisplayName(), spec.DisplayName(), pos),
			Progress: pos,
		})
	}

	res.Artifacts = artifacts
	res.FinishedAt = now()

	logger.Info("item finished", "status", res.Status, "failing_phase", res.FailingPhase, "kind", res.Kind)

	return res, nil
}

func (p *itemPipeline) fail(res *pipeline.ItemResult, index int, spec *pipeline.PhaseSpec, kind pipeline.FailureKind, exitCode int, detail string) {
	res.Status = pipeline.StatusFailed
	if kind == pipeline.FailureCancelled {
		res.Status = pipeline.StatusCancelled
	}

	res.FailingPhase = spec.Name
	res.FailingPhaseIndex = index
	res.Kind = kind
	res.ExitCode = exitCode
	res.Detail = detail
}
