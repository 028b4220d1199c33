package main

import (
	"context"
	"fmt"
	"os"

	"github.com/legrandjeremy/maxence-rag/application/reconcile"
	"github.com/legrandjeremy/maxence-rag/domain/core/entities"
	"github.com/legrandjeremy/maxence-rag/domain/keys"
	"github.com/legrandjeremy/maxence-rag/infrastructure/config"
	"github.com/legrandjeremy/maxence-rag/infrastructure/di"
	storage "github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb"
)

// containerBackend runs commands against a wired container.
type containerBackend struct {
	c *di.Container
}

// segment opens the command's root trace segment, tagged with the table.
func (b containerBackend) segment(ctx context.Context, name string) (context.Context, func(error)) {
	ctx, end := b.c.Tracer.StartSegment(ctx, "playerctl."+name)
	b.c.Tracer.AddAnnotation(ctx, "table", b.c.Config.DynamoDBTable)
	return ctx, end
}

func (b containerBackend) Reconcile(ctx context.Context, dryRun bool, only string) (report reconcile.Report, err error) {
	ctx, end := b.segment(ctx, "reconcile")
	defer func() {
		b.c.Tracer.AddMetadata(ctx, "report", report)
		end(err)
	}()

	cfg := reconcile.DefaultConfig()
	cfg.LockTTL = b.c.Config.ReconcileLockTTL
	cfg.DryRun = dryRun
	r := b.c.Reconciler
	// A dry run writes nothing, so it runs without the lock.
	if dryRun {
		r = reconcile.New(b.c.Engine, nil, nil, nil, cfg, b.c.Logger)
	}
	switch only {
	case "counters":
		return r.RecountPictures(ctx)
	case "pointers":
		return r.RepairTeamPointers(ctx)
	default:
		return r.Run(ctx)
	}
}

func (b containerBackend) Scan(ctx context.Context, entityType keys.EntityType) (recs []storage.StoredRecord, err error) {
	ctx, end := b.segment(ctx, "scan")
	defer func() { end(err) }()
	b.c.Tracer.AddAnnotation(ctx, "entityType", string(entityType))
	return b.c.Engine.ScanByEntityType(ctx, entityType)
}

func (b containerBackend) Counter(ctx context.Context, contactID, category string) (cat entities.PictureCategory, err error) {
	ctx, end := b.segment(ctx, "counter")
	defer func() { end(err) }()
	return b.c.Pictures.GetCategory(ctx, contactID, category)
}

func (b containerBackend) Health(ctx context.Context) (err error) {
	ctx, end := b.segment(ctx, "health")
	defer func() { end(err) }()
	return b.c.Engine.HealthCheck(ctx)
}

func openContainer(ctx context.Context) (Backend, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	container, cleanup, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize container: %w", err)
	}
	return containerBackend{c: container}, func() {
		_ = container.Logger.Sync()
		cleanup()
	}, nil
}

func main() {
	if err := NewRootCommand(openContainer).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
