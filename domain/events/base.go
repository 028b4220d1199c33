package events

import (
	"time"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

const (
	TypeCounterGuardFailed        = "counter.guard_failed"
	TypeCounterDriftCorrected     = "counter.drift_corrected"
	TypeTeamMembershipRepaired    = "team_membership.repaired"
	TypeTeamMembershipCompensated = "team_membership.compensated"
)

// Counter Events

// CounterGuardFailed is raised when a picture delete could not decrement
// its category counter because it was already zero.
type CounterGuardFailed struct {
	BaseEvent
	ContactID string `json:"contact_id"`
	Category  string `json:"category"`
	PictureID string `json:"picture_id"`
}

// NewCounterGuardFailed creates a CounterGuardFailed event
func NewCounterGuardFailed(contactID, category, pictureID string, timestamp time.Time) CounterGuardFailed {
	return CounterGuardFailed{
		BaseEvent: BaseEvent{
			AggregateID: contactID + "#" + category,
			EventType:   TypeCounterGuardFailed,
			Timestamp:   timestamp,
			Version:     1,
		},
		ContactID: contactID,
		Category:  category,
		PictureID: pictureID,
	}
}

// CounterDriftCorrected is raised when reconciliation rewrites a counter
// that disagreed with the picture records.
type CounterDriftCorrected struct {
	BaseEvent
	ContactID string `json:"contact_id"`
	Category  string `json:"category"`
	Stored    int    `json:"stored"`
	Actual    int    `json:"actual"`
}

// NewCounterDriftCorrected creates a CounterDriftCorrected event
func NewCounterDriftCorrected(contactID, category string, stored, actual int, timestamp time.Time) CounterDriftCorrected {
	return CounterDriftCorrected{
		BaseEvent: BaseEvent{
			AggregateID: contactID + "#" + category,
			EventType:   TypeCounterDriftCorrected,
			Timestamp:   timestamp,
			Version:     1,
		},
		ContactID: contactID,
		Category:  category,
		Stored:    stored,
		Actual:    actual,
	}
}

// Team Events

// TeamMembershipRepaired is raised when a user's teamId pointer is
// rewritten to match their membership row.
type TeamMembershipRepaired struct {
	BaseEvent
	UserID    string `json:"user_id"`
	OldTeamID string `json:"old_team_id,omitempty"`
	NewTeamID string `json:"new_team_id,omitempty"`
}

// NewTeamMembershipRepaired creates a TeamMembershipRepaired event
func NewTeamMembershipRepaired(userID, oldTeamID, newTeamID string, timestamp time.Time) TeamMembershipRepaired {
	return TeamMembershipRepaired{
		BaseEvent: BaseEvent{
			AggregateID: userID,
			EventType:   TypeTeamMembershipRepaired,
			Timestamp:   timestamp,
			Version:     1,
		},
		UserID:    userID,
		OldTeamID: oldTeamID,
		NewTeamID: newTeamID,
	}
}

// TeamMembershipCompensated is raised when adding a member was rolled back
// because the user's teamId could not be set. FailedStep is the zero based
// index of the saga step that failed.
type TeamMembershipCompensated struct {
	BaseEvent
	SagaID     string `json:"saga_id"`
	FailedStep int    `json:"failed_step"`
	TeamID     string `json:"team_id"`
	UserID     string `json:"user_id"`
	Reason     string `json:"reason"`
}

// NewTeamMembershipCompensated creates a TeamMembershipCompensated event
func NewTeamMembershipCompensated(sagaID string, failedStep int, teamID, userID, reason string, timestamp time.Time) TeamMembershipCompensated {
	return TeamMembershipCompensated{
		BaseEvent: BaseEvent{
			AggregateID: teamID,
			EventType:   TypeTeamMembershipCompensated,
			Timestamp:   timestamp,
			Version:     1,
		},
		SagaID:     sagaID,
		FailedStep: failedStep,
		TeamID:     teamID,
		UserID:     userID,
		Reason:     reason,
	}
}
