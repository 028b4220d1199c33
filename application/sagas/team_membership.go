package sagas

import (
	"context"
	"time"

	"github.com/legrandjeremy/maxence-rag/application/ports"
	"github.com/legrandjeremy/maxence-rag/domain/core/entities"
	"github.com/legrandjeremy/maxence-rag/domain/events"
	apperrors "github.com/legrandjeremy/maxence-rag/pkg/errors"
	"github.com/legrandjeremy/maxence-rag/pkg/utils"

	"go.uber.org/zap"
)

// MemberRows writes team member rows.
type MemberRows interface {
	AddMember(ctx context.Context, teamID, userID, addedBy string) (entities.TeamMember, error)
	RemoveMember(ctx context.Context, teamID, userID string) error
}

// TeamPointers maintains the user's teamId.
type TeamPointers interface {
	SetTeam(ctx context.Context, userID, teamID string) error
}

// MembershipConfig tunes the pointer step.
type MembershipConfig struct {
	PointerAttempts   int
	PointerRetryDelay time.Duration
}

// DefaultMembershipConfig retries the pointer write three times.
func DefaultMembershipConfig() MembershipConfig {
	return MembershipConfig{PointerAttempts: 3, PointerRetryDelay: 100 * time.Millisecond}
}

// TeamMembership keeps a member row and the user's teamId pointer in step.
// The two writes are not atomic: the member row is written first, the
// pointer is retried, and if it still cannot be written the row is removed.
type TeamMembership struct {
	members   MemberRows
	users     TeamPointers
	publisher ports.EventPublisher
	cfg       MembershipConfig
	clock     utils.Clock
	logger    *zap.Logger
}

func NewTeamMembership(members MemberRows, users TeamPointers, publisher ports.EventPublisher, cfg MembershipConfig, logger *zap.Logger) *TeamMembership {
	if publisher == nil {
		publisher = ports.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PointerAttempts <= 0 {
		cfg.PointerAttempts = 1
	}
	return &TeamMembership{
		members:   members,
		users:     users,
		publisher: publisher,
		cfg:       cfg,
		clock:     utils.SystemClock,
		logger:    logger.Named("team_membership"),
	}
}

type membershipState struct {
	teamID  string
	userID  string
	addedBy string
	member  entities.TeamMember
}

// pointerRetryable retries transport failures and unknown errors, never a
// missing user or a rejected request.
func pointerRetryable(err error) bool {
	return !apperrors.IsNotFound(err) && !apperrors.IsValidation(err) && !apperrors.IsInvalidKey(err)
}

// Add puts the user in the team.
func (m *TeamMembership) Add(ctx context.Context, teamID, userID, addedBy string) (entities.TeamMember, error) {
	state := &membershipState{teamID: teamID, userID: userID, addedBy: addedBy}
	saga := NewSaga[membershipState]("add_team_member", m.logger).
		AddStep(SagaStep[membershipState]{
			Name: "create_member_row",
			Execute: func(ctx context.Context, st *membershipState) error {
				member, err := m.members.AddMember(ctx, st.teamID, st.userID, st.addedBy)
				st.member = member
				return err
			},
			Compensate: func(ctx context.Context, st *membershipState) error {
				return m.members.RemoveMember(ctx, st.teamID, st.userID)
			},
		}).
		AddStep(SagaStep[membershipState]{
			Name: "set_user_team",
			Execute: func(ctx context.Context, st *membershipState) error {
				return m.users.SetTeam(ctx, st.userID, st.teamID)
			},
			MaxRetries: m.cfg.PointerAttempts,
			RetryDelay: m.cfg.PointerRetryDelay,
			Retryable:  pointerRetryable,
		})

	if err := saga.Execute(ctx, state); err != nil {
		if saga.GetState() == SagaStateCompensated {
			m.logger.Warn("Team membership rolled back",
				zap.String("sagaID", saga.GetID()),
				zap.Int("failedStep", saga.GetCurrentStep()),
				zap.String("teamID", teamID),
				zap.String("userID", userID),
			)
			m.publish(ctx, events.NewTeamMembershipCompensated(saga.GetID(), saga.GetCurrentStep(), teamID, userID, err.Error(), m.clock()))
		}
		return entities.TeamMember{}, err
	}
	m.logger.Info("User joined team",
		zap.String("teamID", teamID),
		zap.String("userID", userID),
	)
	return state.member, nil
}

// Remove takes the user out of the team. If the pointer cannot be cleared
// the member row is put back.
func (m *TeamMembership) Remove(ctx context.Context, teamID, userID, removedBy string) error {
	state := &membershipState{teamID: teamID, userID: userID, addedBy: removedBy}
	saga := NewSaga[membershipState]("remove_team_member", m.logger).
		AddStep(SagaStep[membershipState]{
			Name: "delete_member_row",
			Execute: func(ctx context.Context, st *membershipState) error {
				return m.members.RemoveMember(ctx, st.teamID, st.userID)
			},
			Compensate: func(ctx context.Context, st *membershipState) error {
				_, err := m.members.AddMember(ctx, st.teamID, st.userID, st.addedBy)
				if apperrors.IsAlreadyExists(err) {
					return nil
				}
				return err
			},
		}).
		AddStep(SagaStep[membershipState]{
			Name: "clear_user_team",
			Execute: func(ctx context.Context, st *membershipState) error {
				err := m.users.SetTeam(ctx, st.userID, "")
				if apperrors.IsNotFound(err) {
					return nil
				}
				return err
			},
			MaxRetries: m.cfg.PointerAttempts,
			RetryDelay: m.cfg.PointerRetryDelay,
			Retryable:  pointerRetryable,
		})
	return saga.Execute(ctx, state)
}

// Move transfers the user between teams. The member row's key names the
// team, so a move is a removal followed by an add; if the add fails the
// user is put back in the old team.
func (m *TeamMembership) Move(ctx context.Context, fromTeamID, toTeamID, userID, movedBy string) (entities.TeamMember, error) {
	if fromTeamID == toTeamID {
		return entities.TeamMember{}, apperrors.NewValidationError("source and target team are the same")
	}
	if err := m.Remove(ctx, fromTeamID, userID, movedBy); err != nil {
		return entities.TeamMember{}, err
	}
	member, err := m.Add(ctx, toTeamID, userID, movedBy)
	if err == nil {
		return member, nil
	}
	if _, restoreErr := m.Add(ctx, fromTeamID, userID, movedBy); restoreErr != nil {
		m.logger.Error("Failed to restore membership after a failed move",
			zap.String("userID", userID),
			zap.String("teamID", fromTeamID),
			zap.Error(restoreErr),
		)
	}
	return entities.TeamMember{}, err
}

func (m *TeamMembership) publish(ctx context.Context, event events.DomainEvent) {
	if err := m.publisher.Publish(ctx, event); err != nil {
		m.logger.Warn("Failed to publish membership event",
			zap.String("eventType", event.GetEventType()),
			zap.Error(err),
		)
	}
}
