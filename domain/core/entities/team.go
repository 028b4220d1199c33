package entities

// Team is a group of users inside a company, optionally led by a manager.
type Team struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CompanyID   string `json:"companyId"`
	ManagerID   string `json:"managerId,omitempty"`
	IsActive    bool   `json:"isActive"`
	CreatedBy   string `json:"createdBy"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

type CreateTeamInput struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description,omitempty"`
	CompanyID   string `json:"companyId" validate:"required"`
	ManagerID   string `json:"managerId,omitempty"`
}

type TeamUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	ManagerID   *string `json:"managerId,omitempty"`
	IsActive    *bool   `json:"isActive,omitempty"`
}

// TeamMember links a user to a team. A user belongs to at most one team.
type TeamMember struct {
	ID       string `json:"id"`
	TeamID   string `json:"teamId"`
	UserID   string `json:"userId"`
	JoinedAt string `json:"joinedAt"`
	AddedBy  string `json:"addedBy"`
}

type TeamStats struct {
	TeamID       string `json:"teamId"`
	TotalMembers int    `json:"totalMembers"`
}
