// Package entities holds the domain objects persisted in the single table,
// together with their creation inputs and partial-update structs.
//
// Update structs use pointer fields: nil leaves the attribute untouched. For
// optional references (companyId, teamId, managerId) a pointer to the empty
// string clears the attribute.
package entities

// UserType is the role of a user.
type UserType string

const (
	UserTypeAdmin       UserType = "admin"
	UserTypeTeamManager UserType = "team_manager"
	UserTypeUser        UserType = "user"
)

// User is a person known to the platform.
type User struct {
	ID             string   `json:"id"`
	Email          string   `json:"email"`
	FirstName      string   `json:"firstName"`
	LastName       string   `json:"lastName"`
	UserType       UserType `json:"userType"`
	CompanyID      string   `json:"companyId,omitempty"`
	TeamID         string   `json:"teamId,omitempty"`
	IsActive       bool     `json:"isActive"`
	ExternalAuthID string   `json:"externalAuthId"`
	CreatedAt      string   `json:"createdAt"`
	UpdatedAt      string   `json:"updatedAt"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// CreateUserInput carries the fields a caller supplies to create a user.
type CreateUserInput struct {
	Email          string   `json:"email" validate:"required,email"`
	FirstName      string   `json:"firstName" validate:"required"`
	LastName       string   `json:"lastName" validate:"required"`
	UserType       UserType `json:"userType" validate:"required,oneof=admin team_manager user"`
	CompanyID      string   `json:"companyId,omitempty"`
	TeamID         string   `json:"teamId,omitempty"`
	ExternalAuthID string   `json:"externalAuthId"`
}

// UserUpdate is a partial update of a user.
type UserUpdate struct {
	FirstName *string   `json:"firstName,omitempty"`
	LastName  *string   `json:"lastName,omitempty"`
	UserType  *UserType `json:"userType,omitempty" validate:"omitempty,oneof=admin team_manager user"`
	CompanyID *string   `json:"companyId,omitempty"`
	TeamID    *string   `json:"teamId,omitempty"`
	IsActive  *bool     `json:"isActive,omitempty"`
}
