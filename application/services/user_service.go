package services

import (
	"context"
	"strings"

	"github.com/legrandjeremy/maxence-rag/application/ports"
	"github.com/legrandjeremy/maxence-rag/domain/core/entities"
	"github.com/legrandjeremy/maxence-rag/domain/keys"
	storage "github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb"
	"github.com/legrandjeremy/maxence-rag/infrastructure/persistence/records"
	apperrors "github.com/legrandjeremy/maxence-rag/pkg/errors"
	"github.com/legrandjeremy/maxence-rag/pkg/utils"

	"go.uber.org/zap"
)

const externalAuthCacheTTL = 300

// UserService stores user profiles.
type UserService struct {
	base
	cache ports.Cache
}

// NewUserService creates a user service. cache may be nil.
func NewUserService(store ports.Store, cache ports.Cache, logger *zap.Logger) *UserService {
	return &UserService{base: newBase(store, logger, "users"), cache: cache}
}

// Create stores a new user.
func (s *UserService) Create(ctx context.Context, in entities.CreateUserInput) (entities.User, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return entities.User{}, err
	}
	rec, err := records.NewUser(entities.User{
		ID:             s.newID(),
		Email:          strings.ToLower(in.Email),
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		UserType:       in.UserType,
		CompanyID:      in.CompanyID,
		TeamID:         in.TeamID,
		IsActive:       true,
		ExternalAuthID: in.ExternalAuthID,
	})
	if err != nil {
		return entities.User{}, err
	}
	created, err := createAs(ctx, s.store, rec)
	if err != nil {
		return entities.User{}, err
	}
	s.logger.Info("User created",
		zap.String("userID", created.ID),
		zap.String("userType", created.UserType),
	)
	return created.Entity(), nil
}

// GetByID returns one user.
func (s *UserService) GetByID(ctx context.Context, id string) (entities.User, error) {
	rec, err := getAs[records.User](ctx, s.store, "user", keys.UserKey(id))
	if err != nil {
		return entities.User{}, err
	}
	return rec.Entity(), nil
}

// GetByEmail looks the user up through the email index.
func (s *UserService) GetByEmail(ctx context.Context, email string) (entities.User, error) {
	pk := keys.EmailPartition(strings.ToLower(email))
	users, err := queryIndexAs[records.User](ctx, s.store, keys.IndexA, pk, storage.SortBeginsWith(string(keys.EntityUser)+"#"), 1)
	if err != nil {
		return entities.User{}, err
	}
	if len(users) == 0 {
		return entities.User{}, apperrors.NewNotFoundError("user", pk, "")
	}
	return users[0].Entity(), nil
}

// ListByCompany returns the company's roster.
func (s *UserService) ListByCompany(ctx context.Context, companyID string) ([]entities.User, error) {
	users, err := queryIndexAs[records.User](ctx, s.store, keys.IndexB, keys.CompanyPartition(companyID), storage.SortBeginsWith(string(keys.EntityUser)+"#"), 0)
	if err != nil {
		return nil, err
	}
	return mapSlice(users, records.User.Entity), nil
}

// ListAll scans every user.
func (s *UserService) ListAll(ctx context.Context) ([]entities.User, error) {
	users, err := scanAs[records.User](ctx, s.store)
	if err != nil {
		return nil, err
	}
	return mapSlice(users, records.User.Entity), nil
}

// GetByExternalAuthID finds the user linked to an identity provider
// subject. There is no index for it, so misses fall back to a scan and the
// resolved id is cached.
func (s *UserService) GetByExternalAuthID(ctx context.Context, externalID string) (entities.User, error) {
	if externalID == "" {
		return entities.User{}, apperrors.NewValidationError("external auth id is required")
	}
	cacheKey := "externalAuth|" + externalID
	if s.cache != nil {
		if v, ok := s.cache.Get(ctx, cacheKey); ok {
			if id, ok := v.(string); ok {
				user, err := s.GetByID(ctx, id)
				if err == nil && user.ExternalAuthID == externalID {
					return user, nil
				}
				_ = s.cache.Delete(ctx, cacheKey)
			}
		}
	}

	s.logger.Debug("External auth lookup falls back to scan", zap.String("externalAuthID", externalID))
	users, err := s.ListAll(ctx)
	if err != nil {
		return entities.User{}, err
	}
	for _, u := range users {
		if u.ExternalAuthID == externalID {
			if s.cache != nil {
				_ = s.cache.Set(ctx, cacheKey, u.ID, externalAuthCacheTTL)
			}
			return u, nil
		}
	}
	return entities.User{}, apperrors.NewNotFoundError("user", "", "").WithDetail("externalAuthId", externalID)
}

// Update merges the provided fields. A company change moves the user to the
// new company roster; clearing it drops the user from every roster.
func (s *UserService) Update(ctx context.Context, id string, upd entities.UserUpdate) (entities.User, error) {
	if err := utils.ValidateStruct(upd); err != nil {
		return entities.User{}, err
	}
	set := storage.NewUpdate()
	setString(set, "firstName", upd.FirstName)
	setString(set, "lastName", upd.LastName)
	if upd.UserType != nil {
		set.Set("userType", string(*upd.UserType))
	}
	setBool(set, records.AttrIsActive, upd.IsActive)
	setOptionalString(set, records.AttrTeamID, upd.TeamID)
	if upd.CompanyID != nil {
		setOptionalString(set, records.AttrCompanyID, upd.CompanyID)
		set.SetIndex(keys.IndexB, keys.UserIndexB(id, *upd.CompanyID))
	}

	rec, err := updateAs[records.User](ctx, s.store, "user", keys.UserKey(id), set)
	if err != nil {
		return entities.User{}, err
	}
	return rec.Entity(), nil
}

// SetTeam points the user at a team, or clears the pointer for "". It is
// idempotent, which lets the membership saga retry it.
func (s *UserService) SetTeam(ctx context.Context, userID, teamID string) error {
	_, err := s.Update(ctx, userID, entities.UserUpdate{TeamID: &teamID})
	return err
}

// Delete removes the user.
func (s *UserService) Delete(ctx context.Context, id string) error {
	p := keys.UserKey(id)
	if err := s.store.Delete(ctx, p.PK, p.SK); err != nil {
		return err
	}
	s.logger.Info("User deleted", zap.String("userID", id))
	return nil
}
