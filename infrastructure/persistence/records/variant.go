// Package records defines the stored shape of every entity type and the
// closed set of variants a table read can decode into.
package records

import (
	"fmt"

	"github.com/legrandjeremy/maxence-rag/domain/keys"
	storage "github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb"
	apperrors "github.com/legrandjeremy/maxence-rag/pkg/errors"
)

// Variant is implemented only by the record types of this package.
type Variant interface {
	Kind() keys.EntityType
	Meta() storage.Header
	isVariant()
}

// Decode reads a stored record into the variant named by its EntityType.
func Decode(rec storage.StoredRecord) (Variant, error) {
	var v Variant
	switch rec.Type() {
	case keys.EntityUser:
		v = &User{}
	case keys.EntityCompany:
		v = &Company{}
	case keys.EntityCampaign:
		v = &Campaign{}
	case keys.EntityLesson:
		v = &Lesson{}
	case keys.EntityDocument:
		v = &Document{}
	case keys.EntityLessonDocument:
		v = &LessonDocument{}
	case keys.EntityUserProgress:
		v = &UserProgress{}
	case keys.EntityTeam:
		v = &Team{}
	case keys.EntityTeamMember:
		v = &TeamMember{}
	case keys.EntityChat:
		v = &Chat{}
	case keys.EntityChatMessage:
		v = &ChatMessage{}
	case keys.EntityPicture:
		v = &Picture{}
	case keys.EntityCategory:
		v = &Category{}
	default:
		return nil, apperrors.NewInternalError(fmt.Sprintf("unknown entity type %q on %s/%s", rec.EntityType, rec.PK, rec.SK))
	}
	if err := rec.Decode(v); err != nil {
		return nil, apperrors.NewInternalError("failed to decode record").WithCause(err)
	}
	return v, nil
}

// As decodes rec into T, failing when the record holds another type.
func As[T Variant](rec storage.StoredRecord) (T, error) {
	var out T
	if rec.Type() != out.Kind() {
		return out, apperrors.NewInternalError(fmt.Sprintf("expected %s record at %s/%s, found %q", out.Kind(), rec.PK, rec.SK, rec.EntityType))
	}
	if err := rec.Decode(&out); err != nil {
		return out, apperrors.NewInternalError("failed to decode record").WithCause(err)
	}
	return out, nil
}

// Filter decodes the records of type T and skips every other type. Index
// partitions are shared across entity types, so reads go through here.
func Filter[T Variant](recs []storage.StoredRecord) ([]T, error) {
	var zero T
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		if rec.Type() != zero.Kind() {
			continue
		}
		v, err := As[T](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
