package entities

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignCompleted CampaignStatus = "completed"
	CampaignArchived  CampaignStatus = "archived"
)

// Campaign is a training programme owned by a company.
type Campaign struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	CompanyID   string         `json:"companyId"`
	IsActive    bool           `json:"isActive"`
	Status      CampaignStatus `json:"status"`
	StartDate   string         `json:"startDate,omitempty"`
	EndDate     string         `json:"endDate,omitempty"`
	CreatedBy   string         `json:"createdBy"`
	CreatedAt   string         `json:"createdAt"`
	UpdatedAt   string         `json:"updatedAt"`
}

type CreateCampaignInput struct {
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description,omitempty"`
	CompanyID   string         `json:"companyId" validate:"required"`
	Status      CampaignStatus `json:"status,omitempty" validate:"omitempty,oneof=draft active completed archived"`
	StartDate   string         `json:"startDate,omitempty"`
	EndDate     string         `json:"endDate,omitempty"`
}

type CampaignUpdate struct {
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	Status      *CampaignStatus `json:"status,omitempty" validate:"omitempty,oneof=draft active completed archived"`
	StartDate   *string         `json:"startDate,omitempty"`
	EndDate     *string         `json:"endDate,omitempty"`
	IsActive    *bool           `json:"isActive,omitempty"`
}

// Lesson is an ordered step of a campaign.
type Lesson struct {
	ID          string `json:"id"`
	CampaignID  string `json:"campaignId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Points      int    `json:"points"`
	Order       int    `json:"order"`
	IsActive    bool   `json:"isActive"`
	CreatedBy   string `json:"createdBy"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

type CreateLessonInput struct {
	CampaignID  string `json:"campaignId" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description,omitempty"`
	Points      int    `json:"points" validate:"gte=0"`
	Order       int    `json:"order" validate:"gte=0,lte=999"`
}

type LessonUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Points      *int    `json:"points,omitempty" validate:"omitempty,gte=0"`
	Order       *int    `json:"order,omitempty" validate:"omitempty,gte=0,lte=999"`
	IsActive    *bool   `json:"isActive,omitempty"`
}

// OrderChange moves one child to a new ordinal.
type OrderChange struct {
	ID    string `json:"id" validate:"required"`
	Order int    `json:"order" validate:"gte=0,lte=999"`
}

// FileInfo describes an uploaded object.
type FileInfo struct {
	FileName   string `json:"fileName"`
	FileSize   int64  `json:"fileSize"`
	MimeType   string `json:"mimeType"`
	StorageKey string `json:"s3Key"`
}

// Document is a file attached to a campaign, a lesson, or nothing yet.
type Document struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	FileInfo
	CampaignID string `json:"campaignId,omitempty"`
	LessonID   string `json:"lessonId,omitempty"`
	Order      int    `json:"order"`
	IsActive   bool   `json:"isActive"`
	CreatedBy  string `json:"createdBy"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}

type CreateDocumentInput struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description,omitempty"`
	FileName    string `json:"fileName" validate:"required"`
	FileSize    int64  `json:"fileSize" validate:"gte=0"`
	MimeType    string `json:"mimeType" validate:"required"`
	StorageKey  string `json:"s3Key" validate:"required"`
	CampaignID  string `json:"campaignId,omitempty"`
	LessonID    string `json:"lessonId,omitempty"`
	Order       int    `json:"order" validate:"gte=0,lte=999"`
}

// DocumentUpdate may re-parent a document: CampaignID and LessonID pointers
// to "" detach it from that parent.
type DocumentUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	CampaignID  *string `json:"campaignId,omitempty"`
	LessonID    *string `json:"lessonId,omitempty"`
	Order       *int    `json:"order,omitempty" validate:"omitempty,gte=0,lte=999"`
	IsActive    *bool   `json:"isActive,omitempty"`
}

// LessonDocument is a file that belongs to exactly one lesson.
type LessonDocument struct {
	ID          string `json:"id"`
	LessonID    string `json:"lessonId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	FileInfo
	Order     int    `json:"order"`
	IsActive  bool   `json:"isActive"`
	CreatedBy string `json:"createdBy"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type CreateLessonDocumentInput struct {
	LessonID    string `json:"lessonId" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description,omitempty"`
	FileName    string `json:"fileName" validate:"required"`
	FileSize    int64  `json:"fileSize" validate:"gte=0"`
	MimeType    string `json:"mimeType" validate:"required"`
	StorageKey  string `json:"s3Key" validate:"required"`
	Order       int    `json:"order" validate:"gte=0,lte=999"`
}

type LessonDocumentUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Order       *int    `json:"order,omitempty" validate:"omitempty,gte=0,lte=999"`
	IsActive    *bool   `json:"isActive,omitempty"`
}
