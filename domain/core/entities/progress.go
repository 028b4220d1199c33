package entities

// UserProgress records the points a user earned on one lesson.
type UserProgress struct {
	ID           string `json:"id"`
	UserID       string `json:"userId"`
	LessonID     string `json:"lessonId"`
	CampaignID   string `json:"campaignId"`
	PointsEarned int    `json:"pointsEarned"`
	MaxPoints    int    `json:"maxPoints"`
	CompletedAt  string `json:"completedAt"`
	AssignedBy   string `json:"assignedBy,omitempty"`
	TeamID       string `json:"teamId,omitempty"`
	Notes        string `json:"notes,omitempty"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

type CreateUserProgressInput struct {
	UserID       string `json:"userId" validate:"required"`
	LessonID     string `json:"lessonId" validate:"required"`
	CampaignID   string `json:"campaignId" validate:"required"`
	PointsEarned int    `json:"pointsEarned" validate:"gte=0"`
	MaxPoints    int    `json:"maxPoints" validate:"gte=0"`
	AssignedBy   string `json:"assignedBy,omitempty"`
	TeamID       string `json:"teamId,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// UserProgressUpdate changes awarded points; setting PointsEarned also
// refreshes CompletedAt.
type UserProgressUpdate struct {
	PointsEarned *int    `json:"pointsEarned,omitempty" validate:"omitempty,gte=0"`
	Notes        *string `json:"notes,omitempty"`
	AssignedBy   *string `json:"assignedBy,omitempty"`
}

// UserCampaignStats aggregates one user's progress inside a campaign.
type UserCampaignStats struct {
	UserID           string `json:"userId"`
	CampaignID       string `json:"campaignId"`
	TotalPoints      int    `json:"totalPoints"`
	CompletedLessons int    `json:"completedLessons"`
	LastActivity     string `json:"lastActivity"`
	TeamID           string `json:"teamId,omitempty"`
}
