// Package services maps domain entities onto the single table. Each service
// derives keys through domain/keys, stores a records variant through the
// ports.Store contract and exposes the entity's access patterns.
//
// Update methods take the entity's optional-field update struct: nil fields
// are left alone, and a reference set to "" is cleared, which also removes
// any index pair derived from it.
package services

import (
	"context"
	"sort"

	"github.com/legrandjeremy/maxence-rag/application/ports"
	"github.com/legrandjeremy/maxence-rag/domain/keys"
	storage "github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb"
	"github.com/legrandjeremy/maxence-rag/infrastructure/persistence/records"
	apperrors "github.com/legrandjeremy/maxence-rag/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// base carries what every entity service needs.
type base struct {
	store  ports.Store
	logger *zap.Logger
	newID  func() string
}

func newBase(store ports.Store, logger *zap.Logger, name string) base {
	if logger == nil {
		logger = zap.NewNop()
	}
	return base{
		store:  store,
		logger: logger.Named(name),
		newID:  uuid.NewString,
	}
}

// resourceNotFound renames an engine NotFound after the entity looked up.
func resourceNotFound(err error, resource string, p keys.Pair) error {
	if apperrors.IsNotFound(err) {
		return apperrors.NewNotFoundError(resource, p.PK, p.SK).WithCause(err)
	}
	return err
}

func getAs[T records.Variant](ctx context.Context, store ports.Store, resource string, p keys.Pair) (T, error) {
	rec, err := store.Get(ctx, p.PK, p.SK)
	if err != nil {
		var zero T
		return zero, resourceNotFound(err, resource, p)
	}
	return records.As[T](rec)
}

func createAs[T records.Variant](ctx context.Context, store ports.Store, rec T) (T, error) {
	stored, err := store.Create(ctx, rec)
	if err != nil {
		var zero T
		return zero, err
	}
	return records.As[T](stored)
}

func updateAs[T records.Variant](ctx context.Context, store ports.Store, resource string, p keys.Pair, set *storage.UpdateSet, opts ...storage.UpdateOption) (T, error) {
	stored, err := store.Update(ctx, p.PK, p.SK, set, opts...)
	if err != nil {
		var zero T
		return zero, resourceNotFound(err, resource, p)
	}
	return records.As[T](stored)
}

func queryIndexAs[T records.Variant](ctx context.Context, store ports.Store, idx keys.Index, pk string, cond storage.SortCondition, limit int32) ([]T, error) {
	recs, err := store.QueryByIndex(ctx, idx, pk, cond, limit)
	if err != nil {
		return nil, err
	}
	return records.Filter[T](recs)
}

func queryPrimaryAs[T records.Variant](ctx context.Context, store ports.Store, pk, skPrefix string, limit int32) ([]T, error) {
	recs, err := store.QueryByPrimaryKeyPrefix(ctx, pk, skPrefix, limit)
	if err != nil {
		return nil, err
	}
	return records.Filter[T](recs)
}

func scanAs[T records.Variant](ctx context.Context, store ports.Store) ([]T, error) {
	var zero T
	recs, err := store.ScanByEntityType(ctx, zero.Kind())
	if err != nil {
		return nil, err
	}
	return records.Filter[T](recs)
}

func mapSlice[S, T any](in []S, fn func(S) T) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[i] = fn(v)
	}
	return out
}

func filterSlice[T any](in []T, keep func(T) bool) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// sortByOrder sorts stably by order so ties keep their index order.
func sortByOrder[T any](in []T, order func(T) int) {
	sort.SliceStable(in, func(i, j int) bool { return order(in[i]) < order(in[j]) })
}

// setString adds name to the update when the optional value is present.
func setString(set *storage.UpdateSet, name string, v *string) {
	if v != nil {
		set.Set(name, *v)
	}
}

func setInt(set *storage.UpdateSet, name string, v *int) {
	if v != nil {
		set.Set(name, *v)
	}
}

func setBool(set *storage.UpdateSet, name string, v *bool) {
	if v != nil {
		set.Set(name, *v)
	}
}

// setOptionalString sets a reference attribute or removes it when cleared.
func setOptionalString(set *storage.UpdateSet, name string, v *string) {
	if v == nil {
		return
	}
	if *v == "" {
		set.Remove(name)
		return
	}
	set.Set(name, *v)
}

func isNotFound(err error) bool {
	return apperrors.IsNotFound(err)
}
