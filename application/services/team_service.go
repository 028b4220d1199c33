package services

import (
	"context"

	"github.com/legrandjeremy/maxence-rag/application/ports"
	"github.com/legrandjeremy/maxence-rag/domain/core/entities"
	"github.com/legrandjeremy/maxence-rag/domain/keys"
	storage "github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb"
	"github.com/legrandjeremy/maxence-rag/infrastructure/persistence/records"
	apperrors "github.com/legrandjeremy/maxence-rag/pkg/errors"
	"github.com/legrandjeremy/maxence-rag/pkg/utils"

	"go.uber.org/zap"
)

// TeamService stores teams and their member rows. Member rows live in the
// team partition; the user's teamId pointer is maintained separately by
// the membership saga.
type TeamService struct {
	base
}

func NewTeamService(store ports.Store, logger *zap.Logger) *TeamService {
	return &TeamService{base: newBase(store, logger, "teams")}
}

func (s *TeamService) Create(ctx context.Context, in entities.CreateTeamInput, createdBy string) (entities.Team, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return entities.Team{}, err
	}
	rec, err := records.NewTeam(entities.Team{
		ID:          s.newID(),
		Name:        in.Name,
		Description: in.Description,
		CompanyID:   in.CompanyID,
		ManagerID:   in.ManagerID,
		IsActive:    true,
		CreatedBy:   createdBy,
	})
	if err != nil {
		return entities.Team{}, err
	}
	created, err := createAs(ctx, s.store, rec)
	if err != nil {
		return entities.Team{}, err
	}
	s.logger.Info("Team created",
		zap.String("teamID", created.ID),
		zap.String("companyID", created.CompanyID),
	)
	return created.Entity(), nil
}

func (s *TeamService) GetByID(ctx context.Context, id string) (entities.Team, error) {
	rec, err := getAs[records.Team](ctx, s.store, "team", keys.TeamKey(id))
	if err != nil {
		return entities.Team{}, err
	}
	return rec.Entity(), nil
}

func (s *TeamService) ListByCompany(ctx context.Context, companyID string) ([]entities.Team, error) {
	recs, err := queryIndexAs[records.Team](ctx, s.store, keys.IndexA, keys.CompanyPartition(companyID), storage.SortBeginsWith(string(keys.EntityTeam)+"#"), 0)
	if err != nil {
		return nil, err
	}
	return mapSlice(recs, records.Team.Entity), nil
}

func (s *TeamService) ListByManager(ctx context.Context, managerID string) ([]entities.Team, error) {
	recs, err := queryIndexAs[records.Team](ctx, s.store, keys.IndexB, keys.ManagerPartition(managerID), storage.AnySort, 0)
	if err != nil {
		return nil, err
	}
	return mapSlice(recs, records.Team.Entity), nil
}

// Update merges the provided fields. Setting a manager rewrites index B;
// clearing it removes the team from every manager listing.
func (s *TeamService) Update(ctx context.Context, id string, upd entities.TeamUpdate) (entities.Team, error) {
	set := storage.NewUpdate()
	setString(set, "name", upd.Name)
	setString(set, "description", upd.Description)
	setBool(set, records.AttrIsActive, upd.IsActive)
	if upd.ManagerID != nil {
		setOptionalString(set, records.AttrManagerID, upd.ManagerID)
		set.SetIndex(keys.IndexB, keys.TeamIndexB(id, *upd.ManagerID))
	}
	rec, err := updateAs[records.Team](ctx, s.store, "team", keys.TeamKey(id), set)
	if err != nil {
		return entities.Team{}, err
	}
	return rec.Entity(), nil
}

// Delete removes the member rows and then the team in chunked batches.
// Users keep a stale teamId until reconciliation repairs it.
func (s *TeamService) Delete(ctx context.Context, id string) error {
	members, err := s.ListMembers(ctx, id)
	if err != nil {
		return err
	}
	deletes := make([]keys.Pair, 0, len(members)+1)
	for _, m := range members {
		deletes = append(deletes, keys.TeamMemberKey(id, m.UserID))
	}
	deletes = append(deletes, keys.TeamKey(id))
	if err := s.store.BatchWrite(ctx, nil, deletes); err != nil {
		return err
	}
	s.logger.Info("Team deleted",
		zap.String("teamID", id),
		zap.Int("members", len(members)),
	)
	return nil
}

// AddMember writes the member row. A user belongs to at most one team:
// membership elsewhere is AlreadyExists, and re-adding to the same team is
// AlreadyExists from the key condition.
func (s *TeamService) AddMember(ctx context.Context, teamID, userID, addedBy string) (entities.TeamMember, error) {
	current, err := s.GetUserMembership(ctx, userID)
	switch {
	case err == nil && current.TeamID != teamID:
		return entities.TeamMember{}, apperrors.NewAlreadyExistsError(keys.UserPartition(userID), keys.Entity(keys.EntityTeam, current.TeamID)).
			WithDetail("teamId", current.TeamID)
	case err != nil && !isNotFound(err):
		return entities.TeamMember{}, err
	}

	rec, err := records.NewTeamMember(entities.TeamMember{
		ID:       s.newID(),
		TeamID:   teamID,
		UserID:   userID,
		JoinedAt: s.store.Now(),
		AddedBy:  addedBy,
	})
	if err != nil {
		return entities.TeamMember{}, err
	}
	created, err := createAs(ctx, s.store, rec)
	if err != nil {
		return entities.TeamMember{}, err
	}
	s.logger.Debug("Team member added",
		zap.String("teamID", teamID),
		zap.String("userID", userID),
	)
	return created.Entity(), nil
}

// RemoveMember deletes the member row; removing a non-member succeeds.
func (s *TeamService) RemoveMember(ctx context.Context, teamID, userID string) error {
	p := keys.TeamMemberKey(teamID, userID)
	return s.store.Delete(ctx, p.PK, p.SK)
}

func (s *TeamService) ListMembers(ctx context.Context, teamID string) ([]entities.TeamMember, error) {
	recs, err := queryPrimaryAs[records.TeamMember](ctx, s.store, keys.TeamPartition(teamID), keys.PrefixMember, 0)
	if err != nil {
		return nil, err
	}
	return mapSlice(recs, records.TeamMember.Entity), nil
}

// GetUserMembership returns the user's member row, NotFound if the user
// is in no team.
func (s *TeamService) GetUserMembership(ctx context.Context, userID string) (entities.TeamMember, error) {
	pk := keys.UserPartition(userID)
	recs, err := queryIndexAs[records.TeamMember](ctx, s.store, keys.IndexA, pk, storage.SortBeginsWith(string(keys.EntityTeam)+"#"), 0)
	if err != nil {
		return entities.TeamMember{}, err
	}
	if len(recs) == 0 {
		return entities.TeamMember{}, apperrors.NewNotFoundError("team membership", pk, "")
	}
	return recs[0].Entity(), nil
}

func (s *TeamService) Stats(ctx context.Context, teamID string) (entities.TeamStats, error) {
	members, err := s.ListMembers(ctx, teamID)
	if err != nil {
		return entities.TeamStats{}, err
	}
	return entities.TeamStats{TeamID: teamID, TotalMembers: len(members)}, nil
}
