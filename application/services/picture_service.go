package services

import (
	"context"

	"github.com/legrandjeremy/maxence-rag/application/ports"
	"github.com/legrandjeremy/maxence-rag/domain/core/entities"
	"github.com/legrandjeremy/maxence-rag/domain/events"
	"github.com/legrandjeremy/maxence-rag/domain/keys"
	storage "github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb"
	"github.com/legrandjeremy/maxence-rag/infrastructure/persistence/records"
	apperrors "github.com/legrandjeremy/maxence-rag/pkg/errors"
	"github.com/legrandjeremy/maxence-rag/pkg/utils"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"go.uber.org/zap"
)

// Metric names emitted by counter maintenance.
const (
	MetricCounterGuardFailed = "CounterGuardFailed"
	MetricCounterIncrement   = "CounterIncrement"
)

// PictureConfig selects the counter increment strategy.
type PictureConfig struct {
	// AtomicIncrement uses the store's native ADD instead of reading the
	// counter and writing it back. The read-then-write path can lose
	// increments when two pictures land in the same category at once.
	AtomicIncrement bool
}

// PictureService stores picture metadata and keeps the per-category
// totalPictures counter in step with inserts and deletes.
type PictureService struct {
	base
	cfg       PictureConfig
	publisher ports.EventPublisher
	metrics   ports.Metrics
	clock     utils.Clock
}

// NewPictureService creates a picture service. publisher and metrics may be
// nil.
func NewPictureService(store ports.Store, cfg PictureConfig, publisher ports.EventPublisher, metrics ports.Metrics, logger *zap.Logger) *PictureService {
	if publisher == nil {
		publisher = ports.NopPublisher{}
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &PictureService{
		base:      newBase(store, logger, "pictures"),
		cfg:       cfg,
		publisher: publisher,
		metrics:   metrics,
		clock:     utils.SystemClock,
	}
}

// Add stores a picture and increments its category counter. If the counter
// write fails the picture stays stored and the error is returned; the
// reconciler recounts the category later.
func (s *PictureService) Add(ctx context.Context, in entities.AddPictureInput) (entities.Picture, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return entities.Picture{}, err
	}
	id := in.ID
	if id == "" {
		id = s.newID()
	}
	rec, err := records.NewPicture(entities.Picture{
		ID:          id,
		ContactID:   in.ContactID,
		Category:    in.Category,
		Key:         in.Key,
		ContentType: in.ContentType,
		Order:       in.Order,
	})
	if err != nil {
		return entities.Picture{}, err
	}
	created, err := createAs(ctx, s.store, rec)
	if err != nil {
		return entities.Picture{}, err
	}

	if err := s.incrementCounter(ctx, in.ContactID, in.Category); err != nil {
		s.logger.Error("Picture stored but category counter not incremented",
			zap.String("pictureID", id),
			zap.String("contactID", in.ContactID),
			zap.String("category", in.Category),
			zap.Error(err),
		)
		return created.Entity(), err
	}
	s.metrics.IncrementCounter(ctx, MetricCounterIncrement, map[string]string{"Mode": s.mode()})
	return created.Entity(), nil
}

func (s *PictureService) mode() string {
	if s.cfg.AtomicIncrement {
		return "atomic"
	}
	return "read_write"
}

func (s *PictureService) incrementCounter(ctx context.Context, contactID, category string) error {
	if s.cfg.AtomicIncrement {
		return s.incrementAtomic(ctx, contactID, category)
	}
	return s.incrementReadWrite(ctx, contactID, category)
}

// incrementReadWrite reads the counter and writes back its value plus one,
// creating it at 1 when absent. Concurrent callers can both read the same
// value, so one increment is lost.
func (s *PictureService) incrementReadWrite(ctx context.Context, contactID, category string) error {
	p := keys.CategoryKey(contactID, category)
	now := s.store.Now()
	stored, err := s.store.Get(ctx, p.PK, p.SK)
	if err != nil {
		if !isNotFound(err) {
			return err
		}
		rec, err := records.NewCategory(entities.PictureCategory{
			ContactID:     contactID,
			Category:      category,
			TotalPictures: 1,
			LastUpdatedAt: now,
		})
		if err != nil {
			return err
		}
		_, err = s.store.Put(ctx, rec)
		return err
	}

	current, err := records.As[records.Category](stored)
	if err != nil {
		return err
	}
	set := storage.NewUpdate().
		Set(records.AttrTotalPictures, current.TotalPictures+1).
		Set(records.AttrLastUpdatedAt, now)
	_, err = s.store.Update(ctx, p.PK, p.SK, set)
	return err
}

// incrementAtomic adds one with the store's native ADD, creating the
// counter record in the same write when it does not exist yet.
func (s *PictureService) incrementAtomic(ctx context.Context, contactID, category string) error {
	ks, err := keys.Category(contactID, category)
	if err != nil {
		return err
	}
	set := storage.NewUpdate().
		Add(records.AttrTotalPictures, 1).
		Set(records.AttrLastUpdatedAt, s.store.Now()).
		SetIfNotExists(storage.AttrEntityType, string(keys.EntityCategory)).
		SetIfNotExists(storage.AttrID, ks.Primary.PK).
		SetIfNotExists("contactId", contactID).
		SetIfNotExists("category", category).
		SetIfNotExists(storage.AttrGSI1PK, ks.IndexA.PK).
		SetIfNotExists(storage.AttrGSI1SK, ks.IndexA.SK)
	_, err = s.store.Update(ctx, ks.Primary.PK, ks.Primary.SK, set, storage.WithUpsert())
	return err
}

// decrementCounter subtracts one unless the counter is already zero. A
// rejected or missing counter is CounterGuardFailed: it is logged, metered
// and published, then returned.
func (s *PictureService) decrementCounter(ctx context.Context, pic entities.Picture) error {
	p := keys.CategoryKey(pic.ContactID, pic.Category)
	set := storage.NewUpdate().
		Increment(records.AttrTotalPictures, -1).
		Set(records.AttrLastUpdatedAt, s.store.Now())
	guard := expression.Name(records.AttrTotalPictures).GreaterThan(expression.Value(0))

	_, err := s.store.Update(ctx, p.PK, p.SK, set, storage.WithGuard(guard, func(storage.StoredRecord) error {
		return apperrors.NewCounterGuardFailedError(p.PK)
	}))
	if isNotFound(err) {
		err = apperrors.NewCounterGuardFailedError(p.PK).WithDetails(map[string]interface{}{
			"missing":   true,
			"pictureId": pic.ID,
		})
	}
	if err == nil || !apperrors.IsCounterGuardFailed(err) {
		return err
	}

	s.logger.Warn("Category counter decrement rejected",
		zap.String("counter", p.PK),
		zap.String("pictureID", pic.ID),
	)
	s.metrics.IncrementCounter(ctx, MetricCounterGuardFailed, map[string]string{"Category": pic.Category})
	event := events.NewCounterGuardFailed(pic.ContactID, pic.Category, pic.ID, s.clock())
	if pubErr := s.publisher.Publish(ctx, event); pubErr != nil {
		s.logger.Warn("Failed to publish counter guard event", zap.Error(pubErr))
	}
	return err
}

func (s *PictureService) GetByID(ctx context.Context, id string) (entities.Picture, error) {
	rec, err := getAs[records.Picture](ctx, s.store, "picture", keys.PictureKey(id))
	if err != nil {
		return entities.Picture{}, err
	}
	return rec.Entity(), nil
}

// ListByContact returns every picture of a contact across categories.
func (s *PictureService) ListByContact(ctx context.Context, contactID string) ([]entities.Picture, error) {
	recs, err := queryIndexAs[records.Picture](ctx, s.store, keys.IndexB, keys.ContactPartition(contactID), storage.SortBeginsWith(string(keys.EntityPicture)+"#"), 0)
	if err != nil {
		return nil, err
	}
	return mapSlice(recs, records.Picture.Entity), nil
}

// ListByCategory returns a contact's pictures of one category in order.
func (s *PictureService) ListByCategory(ctx context.Context, contactID, category string) ([]entities.Picture, error) {
	recs, err := queryIndexAs[records.Picture](ctx, s.store, keys.IndexA, keys.ContactCategoryPartition(contactID, category), storage.SortBeginsWith(keys.PrefixOrder), 0)
	if err != nil {
		return nil, err
	}
	out := mapSlice(recs, records.Picture.Entity)
	sortByOrder(out, func(p entities.Picture) int { return p.Order })
	return out, nil
}

// ListCategories returns the counters of a contact.
func (s *PictureService) ListCategories(ctx context.Context, contactID string) ([]entities.PictureCategory, error) {
	recs, err := queryIndexAs[records.Category](ctx, s.store, keys.IndexA, keys.ContactPartition(contactID), storage.SortBeginsWith(string(keys.EntityCategory)+"#"), 0)
	if err != nil {
		return nil, err
	}
	return mapSlice(recs, records.Category.Entity), nil
}

func (s *PictureService) GetCategory(ctx context.Context, contactID, category string) (entities.PictureCategory, error) {
	rec, err := getAs[records.Category](ctx, s.store, "picture category", keys.CategoryKey(contactID, category))
	if err != nil {
		return entities.PictureCategory{}, err
	}
	return rec.Entity(), nil
}

// Delete removes a picture and decrements its counter. The picture stays
// deleted when the decrement is rejected.
func (s *PictureService) Delete(ctx context.Context, id string) error {
	pic, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	p := keys.PictureKey(id)
	if err := s.store.Delete(ctx, p.PK, p.SK); err != nil {
		return err
	}
	return s.decrementCounter(ctx, pic)
}

// WithClock replaces the clock used to stamp events.
func (s *PictureService) WithClock(clock utils.Clock) *PictureService {
	if clock != nil {
		s.clock = clock
	}
	return s
}
