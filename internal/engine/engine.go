package engine

import (
	"context"

	"github.com/denismitr/chmigrate/internal/database"
	"github.com/denismitr/chmigrate/internal/logger"
	"github.com/denismitr/chmigrate/internal/source"
	"github.com/denismitr/chmigrate/migration"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Gateway is the part of the database the engine mutates
type Gateway interface {
	database.Ledger
	database.Executor
}

type Snapshotter interface {
	Write(ctx context.Context) error
}

// Report tells exactly what a batch did, it is filled in even when the batch fails
type Report struct {
	Applied    []string
	Skipped    []string
	RolledBack []string
}

type Status struct {
	Applied []string
	Pending []string
}

// Engine reconciles definitions with the ledger. Batches are not
// transactional: statements of a failed migration that already ran stay in
// effect and its ledger row is not written (apply) or not removed (rollback).
type Engine struct {
	selector    source.Selector
	gateway     Gateway
	snapshotter Snapshotter
	lg          logger.Logger
}

func New(selector source.Selector, gateway Gateway, snapshotter Snapshotter, lg logger.Logger) *Engine {
	if lg == nil {
		lg = &logger.NullLogger{}
	}

	return &Engine{
		selector:    selector,
		gateway:     gateway,
		snapshotter: snapshotter,
		lg:          lg,
	}
}

// Apply runs pending migrations in name order, at most limit of them when limit is positive
func (e *Engine) Apply(ctx context.Context, limit int) (Report, error) {
	var report Report

	pending, err := e.pending(ctx, limit)
	if err != nil {
		return report, err
	}

	if len(pending) == 0 {
		e.lg.Successf("there are no migrations to apply")
	}

	batchErr := e.applyAll(ctx, pending, &report)

	return report, e.finish(ctx, batchErr)
}

func (e *Engine) applyAll(ctx context.Context, pending []string, report *Report) error {
	for _, name := range pending {
		m, err := e.selector.Load(ctx, name)
		if err != nil {
			e.lg.Error(err)
			return err
		}

		if m.IsEmpty() {
			e.lg.Warnf("skipped empty migration: %s", name)
			report.Skipped = append(report.Skipped, name)
			continue
		}

		if err := e.execute(ctx, name, m.Statements()); err != nil {
			e.lg.Error(err)
			return err
		}

		if err := e.gateway.WriteApplied(ctx, m); err != nil {
			e.lg.Error(err)
			return err
		}

		report.Applied = append(report.Applied, name)
		e.lg.Successf("%s applied", name)
	}

	return nil
}

// Rollback reverts up to count most recently applied migrations
func (e *Engine) Rollback(ctx context.Context, count int) (Report, error) {
	var report Report

	if err := database.ValidateRollbackCount(count); err != nil {
		return report, err
	}

	scheduled, err := e.gateway.ReadForRollback(ctx, count)
	if err != nil {
		return report, err
	}

	if len(scheduled) == 0 {
		e.lg.Successf("there are no migrations to roll back")
	}

	batchErr := e.rollbackAll(ctx, scheduled, &report)

	return report, e.finish(ctx, batchErr)
}

func (e *Engine) rollbackAll(ctx context.Context, scheduled migration.Migrations, report *Report) error {
	for _, m := range scheduled {
		e.lg.Debugf("rolling back %s applied at %s", m.Name, m.AppliedAt)

		if err := e.execute(ctx, m.Name, m.RollbackStatements()); err != nil {
			e.lg.Error(err)
			return err
		}

		removed, err := e.gateway.RemoveApplied(ctx, m.Name)
		if err != nil {
			e.lg.Error(err)
			return err
		}

		if !removed {
			e.lg.Warnf("ledger row of %s disappeared before it could be removed", m.Name)
		}

		report.RolledBack = append(report.RolledBack, m.Name)
		e.lg.Successf("%s rolled back", m.Name)
	}

	return nil
}

func (e *Engine) Status(ctx context.Context) (Status, error) {
	var status Status

	applied, err := e.gateway.ReadApplied(ctx)
	if err != nil {
		return status, err
	}

	definitions, err := e.selector.ListNames(ctx)
	if err != nil {
		return status, err
	}

	pending, err := database.SchedulePending(definitions, applied, 0)
	if err != nil {
		return status, err
	}

	status.Applied = applied
	status.Pending = pending

	return status, nil
}

func (e *Engine) pending(ctx context.Context, limit int) ([]string, error) {
	if limit < 0 {
		return database.SchedulePending(nil, nil, limit)
	}

	definitions, err := e.selector.ListNames(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not list migration definitions")
	}

	applied, err := e.gateway.ReadApplied(ctx)
	if err != nil {
		return nil, err
	}

	return database.SchedulePending(definitions, applied, limit)
}

func (e *Engine) execute(ctx context.Context, name string, statements []string) error {
	for _, stmt := range statements {
		if err := e.gateway.Exec(ctx, stmt); err != nil {
			return &database.StatementError{Migration: name, Statement: stmt, Err: err}
		}
	}

	return nil
}

// finish regenerates the snapshot whatever happened to the batch,
// the batch error comes first when both fail
func (e *Engine) finish(ctx context.Context, batchErr error) error {
	snapshotErr := e.snapshotter.Write(ctx)
	if snapshotErr != nil {
		e.lg.Error(snapshotErr)
	}

	if batchErr == nil {
		return snapshotErr
	}

	if snapshotErr == nil {
		return batchErr
	}

	return multierror.Append(batchErr, snapshotErr)
}
