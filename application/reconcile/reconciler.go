// Package reconcile repairs the denormalized data the write paths may leave
// behind: category picture counters that drifted from the real picture
// count, and user teamId pointers that disagree with the team member rows.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/legrandjeremy/maxence-rag/application/ports"
	"github.com/legrandjeremy/maxence-rag/domain/core/entities"
	"github.com/legrandjeremy/maxence-rag/domain/events"
	"github.com/legrandjeremy/maxence-rag/domain/keys"
	storage "github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb"
	"github.com/legrandjeremy/maxence-rag/infrastructure/persistence/records"
	apperrors "github.com/legrandjeremy/maxence-rag/pkg/errors"
	"github.com/legrandjeremy/maxence-rag/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LockResource is the lock every reconciliation run holds.
const LockResource = "reconcile"

// Metric names.
const (
	MetricCounterDrift    = "CounterDriftCorrected"
	MetricPointerRepaired = "TeamPointerRepaired"
)

// ErrAlreadyRunning is returned when another process holds the lock.
var ErrAlreadyRunning = errors.New("reconciliation already running")

// Config tunes a Reconciler.
type Config struct {
	LockTTL     time.Duration
	LockTimeout time.Duration
	// DryRun reports drift without writing corrections or publishing events.
	DryRun bool
}

// DefaultConfig holds the lock for five minutes and does not wait for it.
func DefaultConfig() Config {
	return Config{LockTTL: 5 * time.Minute}
}

// CounterDrift is one category whose stored count disagreed with its
// pictures.
type CounterDrift struct {
	ContactID string `json:"contactId"`
	Category  string `json:"category"`
	Stored    int    `json:"stored"`
	Actual    int    `json:"actual"`
}

// PointerRepair is one user whose teamId disagreed with the member rows.
type PointerRepair struct {
	UserID    string `json:"userId"`
	OldTeamID string `json:"oldTeamId,omitempty"`
	NewTeamID string `json:"newTeamId,omitempty"`
}

// Report summarizes a run.
type Report struct {
	DryRun            bool            `json:"dryRun"`
	CategoriesChecked int             `json:"categoriesChecked"`
	Drift             []CounterDrift  `json:"drift,omitempty"`
	UsersChecked      int             `json:"usersChecked"`
	Repairs           []PointerRepair `json:"repairs,omitempty"`
}

// Reconciler scans the table and rewrites drifted denormalized state.
type Reconciler struct {
	store     ports.Store
	locker    ports.Locker
	publisher ports.EventPublisher
	metrics   ports.Metrics
	cfg       Config
	owner     string
	clock     utils.Clock
	logger    *zap.Logger
}

// New creates a reconciler. locker may be nil when only one process ever
// runs it; publisher and metrics may be nil.
func New(store ports.Store, locker ports.Locker, publisher ports.EventPublisher, metrics ports.Metrics, cfg Config, logger *zap.Logger) *Reconciler {
	if publisher == nil {
		publisher = ports.NopPublisher{}
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultConfig().LockTTL
	}
	return &Reconciler{
		store:     store,
		locker:    locker,
		publisher: publisher,
		metrics:   metrics,
		cfg:       cfg,
		owner:     "reconciler-" + uuid.NewString(),
		clock:     utils.SystemClock,
		logger:    logger.Named("reconcile"),
	}
}

// WithClock replaces the clock used to stamp events.
func (r *Reconciler) WithClock(clock utils.Clock) *Reconciler {
	if clock != nil {
		r.clock = clock
	}
	return r
}

// Run recounts picture counters and repairs team pointers under the
// reconciliation lock.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	var report Report
	err := r.locked(ctx, func(ctx context.Context) error {
		var err error
		if report, err = r.recountPictures(ctx, report); err != nil {
			return err
		}
		report, err = r.repairTeamPointers(ctx, report)
		return err
	})
	return report, err
}

// RecountPictures only fixes counters.
func (r *Reconciler) RecountPictures(ctx context.Context) (Report, error) {
	var report Report
	err := r.locked(ctx, func(ctx context.Context) error {
		var err error
		report, err = r.recountPictures(ctx, report)
		return err
	})
	return report, err
}

// RepairTeamPointers only fixes user teamId pointers.
func (r *Reconciler) RepairTeamPointers(ctx context.Context) (Report, error) {
	var report Report
	err := r.locked(ctx, func(ctx context.Context) error {
		var err error
		report, err = r.repairTeamPointers(ctx, report)
		return err
	})
	return report, err
}

func (r *Reconciler) locked(ctx context.Context, fn func(context.Context) error) error {
	if r.locker == nil {
		return fn(ctx)
	}
	lock, err := r.locker.TryAcquire(ctx, LockResource, r.owner, r.cfg.LockTTL, r.cfg.LockTimeout)
	if err != nil {
		if errors.Is(err, storage.ErrLockHeld) {
			return ErrAlreadyRunning
		}
		return err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn("Failed to release reconciliation lock", zap.Error(err))
		}
	}()
	return fn(ctx)
}

type categoryKey struct {
	contactID string
	category  string
}

// recountPictures compares every counter with the pictures it counts.
// Pictures added while the scan runs can show up as drift; the next run
// settles them.
func (r *Reconciler) recountPictures(ctx context.Context, report Report) (Report, error) {
	report.DryRun = r.cfg.DryRun
	pictures, err := scan[records.Picture](ctx, r.store)
	if err != nil {
		return report, err
	}
	counters, err := scan[records.Category](ctx, r.store)
	if err != nil {
		return report, err
	}

	actual := make(map[categoryKey]int)
	for _, p := range pictures {
		actual[categoryKey{p.ContactID, p.Category}]++
	}
	stored := make(map[categoryKey]int, len(counters))
	for _, c := range counters {
		stored[categoryKey{c.ContactID, c.Category}] = c.TotalPictures
	}

	all := make([]categoryKey, 0, len(actual)+len(stored))
	for k := range stored {
		all = append(all, k)
	}
	for k := range actual {
		if _, ok := stored[k]; !ok {
			all = append(all, k)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].contactID != all[j].contactID {
			return all[i].contactID < all[j].contactID
		}
		return all[i].category < all[j].category
	})

	var published []events.DomainEvent
	for _, k := range all {
		report.CategoriesChecked++
		have, exists := stored[k]
		want := actual[k]
		if exists && have == want {
			continue
		}
		drift := CounterDrift{ContactID: k.contactID, Category: k.category, Stored: have, Actual: want}
		report.Drift = append(report.Drift, drift)
		r.logger.Warn("Category counter drift",
			zap.String("contactID", k.contactID),
			zap.String("category", k.category),
			zap.Int("stored", have),
			zap.Int("actual", want),
			zap.Bool("dryRun", r.cfg.DryRun),
		)
		if r.cfg.DryRun {
			continue
		}
		if err := r.writeCounter(ctx, k, want, exists); err != nil {
			return report, fmt.Errorf("correct counter %s/%s: %w", k.contactID, k.category, err)
		}
		r.metrics.IncrementCounter(ctx, MetricCounterDrift, map[string]string{"Category": k.category})
		published = append(published, events.NewCounterDriftCorrected(k.contactID, k.category, have, want, r.clock()))
	}
	r.publish(ctx, published)
	return report, nil
}

func (r *Reconciler) writeCounter(ctx context.Context, k categoryKey, total int, exists bool) error {
	now := r.store.Now()
	if !exists {
		rec, err := records.NewCategory(entities.PictureCategory{
			ContactID:     k.contactID,
			Category:      k.category,
			TotalPictures: total,
			LastUpdatedAt: now,
		})
		if err != nil {
			return err
		}
		_, err = r.store.Create(ctx, rec)
		if apperrors.IsAlreadyExists(err) {
			return r.writeCounter(ctx, k, total, true)
		}
		return err
	}
	p := keys.CategoryKey(k.contactID, k.category)
	set := storage.NewUpdate().
		Set(records.AttrTotalPictures, total).
		Set(records.AttrLastUpdatedAt, now)
	_, err := r.store.Update(ctx, p.PK, p.SK, set)
	return err
}

// repairTeamPointers points every user at the team its member row names,
// and clears pointers to teams the user is not a member of. A user with
// rows in several teams keeps the earliest one.
func (r *Reconciler) repairTeamPointers(ctx context.Context, report Report) (Report, error) {
	report.DryRun = r.cfg.DryRun
	members, err := scan[records.TeamMember](ctx, r.store)
	if err != nil {
		return report, err
	}
	users, err := scan[records.User](ctx, r.store)
	if err != nil {
		return report, err
	}

	membership := make(map[string]records.TeamMember, len(members))
	for _, m := range members {
		current, ok := membership[m.UserID]
		if !ok {
			membership[m.UserID] = m
			continue
		}
		r.logger.Warn("User has member rows in several teams",
			zap.String("userID", m.UserID),
			zap.String("teamID", current.TeamID),
			zap.String("otherTeamID", m.TeamID),
		)
		if joinedEarlier(m.JoinedAt, current.JoinedAt) {
			membership[m.UserID] = m
		}
	}

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	var published []events.DomainEvent
	for _, u := range users {
		report.UsersChecked++
		want := membership[u.ID].TeamID
		if u.TeamID == want {
			continue
		}
		repair := PointerRepair{UserID: u.ID, OldTeamID: u.TeamID, NewTeamID: want}
		report.Repairs = append(report.Repairs, repair)
		r.logger.Warn("User team pointer disagrees with membership",
			zap.String("userID", u.ID),
			zap.String("teamID", u.TeamID),
			zap.String("memberOf", want),
			zap.Bool("dryRun", r.cfg.DryRun),
		)
		if r.cfg.DryRun {
			continue
		}
		set := storage.NewUpdate()
		if want == "" {
			set.Remove(records.AttrTeamID)
		} else {
			set.Set(records.AttrTeamID, want)
		}
		p := keys.UserKey(u.ID)
		if _, err := r.store.Update(ctx, p.PK, p.SK, set); err != nil {
			if apperrors.IsNotFound(err) {
				continue
			}
			return report, fmt.Errorf("repair user %s: %w", u.ID, err)
		}
		r.metrics.IncrementCounter(ctx, MetricPointerRepaired, nil)
		published = append(published, events.NewTeamMembershipRepaired(u.ID, u.TeamID, want, r.clock()))
	}
	r.publish(ctx, published)
	return report, nil
}

func (r *Reconciler) publish(ctx context.Context, batch []events.DomainEvent) {
	if len(batch) == 0 {
		return
	}
	if err := r.publisher.PublishBatch(ctx, batch); err != nil {
		r.logger.Warn("Failed to publish reconciliation events",
			zap.Int("count", len(batch)),
			zap.Error(err),
		)
	}
}

func scan[T records.Variant](ctx context.Context, store ports.Store) ([]T, error) {
	var zero T
	recs, err := store.ScanByEntityType(ctx, zero.Kind())
	if err != nil {
		return nil, err
	}
	return records.Filter[T](recs)
}

// joinedEarlier compares join stamps as times. Rows written with plain
// RFC3339 stamps do not sort correctly as strings against millisecond ones.
func joinedEarlier(a, b string) bool {
	ta, errA := utils.ParseISO(a)
	tb, errB := utils.ParseISO(b)
	if errA != nil || errB != nil {
		return a < b
	}
	return ta.Before(tb)
}
