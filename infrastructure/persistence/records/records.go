package records

import (
	"github.com/legrandjeremy/maxence-rag/domain/core/entities"
	"github.com/legrandjeremy/maxence-rag/domain/keys"
	storage "github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb"
)

// Attribute names written by the services' partial updates.
const (
	AttrIsActive      = "isActive"
	AttrOrder         = "order"
	AttrTeamID        = "teamId"
	AttrCompanyID     = "companyId"
	AttrManagerID     = "managerId"
	AttrCampaignID    = "campaignId"
	AttrLessonID      = "lessonId"
	AttrLastMessageAt = "lastMessageAt"
	AttrTotalPictures = "totalPictures"
	AttrLastUpdatedAt = "lastUpdatedAt"
	AttrCompletedAt   = "completedAt"
)

// ---------------------------------------------------------------------------
// User
// ---------------------------------------------------------------------------

type User struct {
	storage.Header
	Email          string `dynamodbav:"email"`
	FirstName      string `dynamodbav:"firstName"`
	LastName       string `dynamodbav:"lastName"`
	UserType       string `dynamodbav:"userType"`
	CompanyID      string `dynamodbav:"companyId,omitempty"`
	TeamID         string `dynamodbav:"teamId,omitempty"`
	IsActive       bool   `dynamodbav:"isActive"`
	ExternalAuthID string `dynamodbav:"externalAuthId,omitempty"`
}

func (User) Kind() keys.EntityType  { return keys.EntityUser }
func (r User) Meta() storage.Header { return r.Header }
func (User) isVariant()             {}

func NewUser(u entities.User) (User, error) {
	ks, err := keys.User(u.ID, u.Email, u.CompanyID)
	if err != nil {
		return User{}, err
	}
	return User{
		Header:         storage.NewHeader(keys.EntityUser, u.ID, ks),
		Email:          u.Email,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		UserType:       string(u.UserType),
		CompanyID:      u.CompanyID,
		TeamID:         u.TeamID,
		IsActive:       u.IsActive,
		ExternalAuthID: u.ExternalAuthID,
	}, nil
}

func (r User) Entity() entities.User {
	return entities.User{
		ID:             r.ID,
		Email:          r.Email,
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		UserType:       entities.UserType(r.UserType),
		CompanyID:      r.CompanyID,
		TeamID:         r.TeamID,
		IsActive:       r.IsActive,
		ExternalAuthID: r.ExternalAuthID,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// Company
// ---------------------------------------------------------------------------

type Company struct {
	storage.Header
	Name        string `dynamodbav:"name"`
	Description string `dynamodbav:"description,omitempty"`
	IsActive    bool   `dynamodbav:"isActive"`
	CreatedBy   string `dynamodbav:"createdBy"`
}

func (Company) Kind() keys.EntityType  { return keys.EntityCompany }
func (r Company) Meta() storage.Header { return r.Header }
func (Company) isVariant()             {}

func NewCompany(c entities.Company) (Company, error) {
	ks, err := keys.Company(c.ID, c.CreatedBy)
	if err != nil {
		return Company{}, err
	}
	return Company{
		Header:      storage.NewHeader(keys.EntityCompany, c.ID, ks),
		Name:        c.Name,
		Description: c.Description,
		IsActive:    c.IsActive,
		CreatedBy:   c.CreatedBy,
	}, nil
}

func (r Company) Entity() entities.Company {
	return entities.Company{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		IsActive:    r.IsActive,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// Campaign
// ---------------------------------------------------------------------------

type Campaign struct {
	storage.Header
	Name        string `dynamodbav:"name"`
	Description string `dynamodbav:"description,omitempty"`
	CompanyID   string `dynamodbav:"companyId"`
	IsActive    bool   `dynamodbav:"isActive"`
	Status      string `dynamodbav:"status"`
	StartDate   string `dynamodbav:"startDate,omitempty"`
	EndDate     string `dynamodbav:"endDate,omitempty"`
	CreatedBy   string `dynamodbav:"createdBy"`
}

func (Campaign) Kind() keys.EntityType  { return keys.EntityCampaign }
func (r Campaign) Meta() storage.Header { return r.Header }
func (Campaign) isVariant()             {}

func NewCampaign(c entities.Campaign) (Campaign, error) {
	ks, err := keys.Campaign(c.ID, c.CompanyID, c.CreatedBy)
	if err != nil {
		return Campaign{}, err
	}
	return Campaign{
		Header:      storage.NewHeader(keys.EntityCampaign, c.ID, ks),
		Name:        c.Name,
		Description: c.Description,
		CompanyID:   c.CompanyID,
		IsActive:    c.IsActive,
		Status:      string(c.Status),
		StartDate:   c.StartDate,
		EndDate:     c.EndDate,
		CreatedBy:   c.CreatedBy,
	}, nil
}

func (r Campaign) Entity() entities.Campaign {
	return entities.Campaign{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		CompanyID:   r.CompanyID,
		IsActive:    r.IsActive,
		Status:      entities.CampaignStatus(r.Status),
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// Lesson
// ---------------------------------------------------------------------------

type Lesson struct {
	storage.Header
	CampaignID  string `dynamodbav:"campaignId"`
	Name        string `dynamodbav:"name"`
	Description string `dynamodbav:"description,omitempty"`
	Points      int    `dynamodbav:"points"`
	Order       int    `dynamodbav:"order"`
	IsActive    bool   `dynamodbav:"isActive"`
	CreatedBy   string `dynamodbav:"createdBy"`
}

func (Lesson) Kind() keys.EntityType  { return keys.EntityLesson }
func (r Lesson) Meta() storage.Header { return r.Header }
func (Lesson) isVariant()             {}

func NewLesson(l entities.Lesson) (Lesson, error) {
	ks, err := keys.Lesson(l.ID, l.CampaignID, l.CreatedBy, l.Order)
	if err != nil {
		return Lesson{}, err
	}
	return Lesson{
		Header:      storage.NewHeader(keys.EntityLesson, l.ID, ks),
		CampaignID:  l.CampaignID,
		Name:        l.Name,
		Description: l.Description,
		Points:      l.Points,
		Order:       l.Order,
		IsActive:    l.IsActive,
		CreatedBy:   l.CreatedBy,
	}, nil
}

func (r Lesson) Entity() entities.Lesson {
	return entities.Lesson{
		ID:          r.ID,
		CampaignID:  r.CampaignID,
		Name:        r.Name,
		Description: r.Description,
		Points:      r.Points,
		Order:       r.Order,
		IsActive:    r.IsActive,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// Document / LessonDocument
// ---------------------------------------------------------------------------

type fileAttributes struct {
	FileName   string `dynamodbav:"fileName"`
	FileSize   int64  `dynamodbav:"fileSize"`
	MimeType   string `dynamodbav:"mimeType"`
	StorageKey string `dynamodbav:"s3Key"`
}

func newFileAttributes(f entities.FileInfo) fileAttributes {
	return fileAttributes{FileName: f.FileName, FileSize: f.FileSize, MimeType: f.MimeType, StorageKey: f.StorageKey}
}

func (f fileAttributes) info() entities.FileInfo {
	return entities.FileInfo{FileName: f.FileName, FileSize: f.FileSize, MimeType: f.MimeType, StorageKey: f.StorageKey}
}

type Document struct {
	storage.Header
	fileAttributes
	Name        string `dynamodbav:"name"`
	Description string `dynamodbav:"description,omitempty"`
	CampaignID  string `dynamodbav:"campaignId,omitempty"`
	LessonID    string `dynamodbav:"lessonId,omitempty"`
	Order       int    `dynamodbav:"order"`
	IsActive    bool   `dynamodbav:"isActive"`
	CreatedBy   string `dynamodbav:"createdBy"`
}

func (Document) Kind() keys.EntityType  { return keys.EntityDocument }
func (r Document) Meta() storage.Header { return r.Header }
func (Document) isVariant()             {}

func NewDocument(d entities.Document) (Document, error) {
	ks, err := keys.Document(d.ID, d.CampaignID, d.LessonID, d.CreatedBy, d.Order)
	if err != nil {
		return Document{}, err
	}
	return Document{
		Header:         storage.NewHeader(keys.EntityDocument, d.ID, ks),
		fileAttributes: newFileAttributes(d.FileInfo),
		Name:           d.Name,
		Description:    d.Description,
		CampaignID:     d.CampaignID,
		LessonID:       d.LessonID,
		Order:          d.Order,
		IsActive:       d.IsActive,
		CreatedBy:      d.CreatedBy,
	}, nil
}

func (r Document) Entity() entities.Document {
	return entities.Document{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		FileInfo:    r.fileAttributes.info(),
		CampaignID:  r.CampaignID,
		LessonID:    r.LessonID,
		Order:       r.Order,
		IsActive:    r.IsActive,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type LessonDocument struct {
	storage.Header
	fileAttributes
	LessonID    string `dynamodbav:"lessonId"`
	Name        string `dynamodbav:"name"`
	Description string `dynamodbav:"description,omitempty"`
	Order       int    `dynamodbav:"order"`
	IsActive    bool   `dynamodbav:"isActive"`
	CreatedBy   string `dynamodbav:"createdBy"`
}

func (LessonDocument) Kind() keys.EntityType  { return keys.EntityLessonDocument }
func (r LessonDocument) Meta() storage.Header { return r.Header }
func (LessonDocument) isVariant()             {}

func NewLessonDocument(d entities.LessonDocument) (LessonDocument, error) {
	ks, err := keys.LessonDocument(d.ID, d.LessonID, d.CreatedBy, d.Order)
	if err != nil {
		return LessonDocument{}, err
	}
	return LessonDocument{
		Header:         storage.NewHeader(keys.EntityLessonDocument, d.ID, ks),
		fileAttributes: newFileAttributes(d.FileInfo),
		LessonID:       d.LessonID,
		Name:           d.Name,
		Description:    d.Description,
		Order:          d.Order,
		IsActive:       d.IsActive,
		CreatedBy:      d.CreatedBy,
	}, nil
}

func (r LessonDocument) Entity() entities.LessonDocument {
	return entities.LessonDocument{
		ID:          r.ID,
		LessonID:    r.LessonID,
		Name:        r.Name,
		Description: r.Description,
		FileInfo:    r.fileAttributes.info(),
		Order:       r.Order,
		IsActive:    r.IsActive,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// UserProgress
// ---------------------------------------------------------------------------

type UserProgress struct {
	storage.Header
	UserID       string `dynamodbav:"userId"`
	LessonID     string `dynamodbav:"lessonId"`
	CampaignID   string `dynamodbav:"campaignId"`
	PointsEarned int    `dynamodbav:"pointsEarned"`
	MaxPoints    int    `dynamodbav:"maxPoints"`
	CompletedAt  string `dynamodbav:"completedAt"`
	AssignedBy   string `dynamodbav:"assignedBy,omitempty"`
	TeamID       string `dynamodbav:"teamId,omitempty"`
	Notes        string `dynamodbav:"notes,omitempty"`
}

func (UserProgress) Kind() keys.EntityType  { return keys.EntityUserProgress }
func (r UserProgress) Meta() storage.Header { return r.Header }
func (UserProgress) isVariant()             {}

func NewUserProgress(p entities.UserProgress) (UserProgress, error) {
	ks, err := keys.UserProgress(p.ID, p.UserID, p.CampaignID, p.LessonID)
	if err != nil {
		return UserProgress{}, err
	}
	return UserProgress{
		Header:       storage.NewHeader(keys.EntityUserProgress, p.ID, ks),
		UserID:       p.UserID,
		LessonID:     p.LessonID,
		CampaignID:   p.CampaignID,
		PointsEarned: p.PointsEarned,
		MaxPoints:    p.MaxPoints,
		CompletedAt:  p.CompletedAt,
		AssignedBy:   p.AssignedBy,
		TeamID:       p.TeamID,
		Notes:        p.Notes,
	}, nil
}

func (r UserProgress) Entity() entities.UserProgress {
	return entities.UserProgress{
		ID:           r.ID,
		UserID:       r.UserID,
		LessonID:     r.LessonID,
		CampaignID:   r.CampaignID,
		PointsEarned: r.PointsEarned,
		MaxPoints:    r.MaxPoints,
		CompletedAt:  r.CompletedAt,
		AssignedBy:   r.AssignedBy,
		TeamID:       r.TeamID,
		Notes:        r.Notes,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// Team / TeamMember
// ---------------------------------------------------------------------------

type Team struct {
	storage.Header
	Name        string `dynamodbav:"name"`
	Description string `dynamodbav:"description,omitempty"`
	CompanyID   string `dynamodbav:"companyId"`
	ManagerID   string `dynamodbav:"managerId,omitempty"`
	IsActive    bool   `dynamodbav:"isActive"`
	CreatedBy   string `dynamodbav:"createdBy"`
}

func (Team) Kind() keys.EntityType  { return keys.EntityTeam }
func (r Team) Meta() storage.Header { return r.Header }
func (Team) isVariant()             {}

func NewTeam(t entities.Team) (Team, error) {
	ks, err := keys.Team(t.ID, t.CompanyID, t.ManagerID)
	if err != nil {
		return Team{}, err
	}
	return Team{
		Header:      storage.NewHeader(keys.EntityTeam, t.ID, ks),
		Name:        t.Name,
		Description: t.Description,
		CompanyID:   t.CompanyID,
		ManagerID:   t.ManagerID,
		IsActive:    t.IsActive,
		CreatedBy:   t.CreatedBy,
	}, nil
}

func (r Team) Entity() entities.Team {
	return entities.Team{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		CompanyID:   r.CompanyID,
		ManagerID:   r.ManagerID,
		IsActive:    r.IsActive,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type TeamMember struct {
	storage.Header
	TeamID   string `dynamodbav:"teamId"`
	UserID   string `dynamodbav:"userId"`
	JoinedAt string `dynamodbav:"joinedAt"`
	AddedBy  string `dynamodbav:"addedBy"`
}

func (TeamMember) Kind() keys.EntityType  { return keys.EntityTeamMember }
func (r TeamMember) Meta() storage.Header { return r.Header }
func (TeamMember) isVariant()             {}

func NewTeamMember(m entities.TeamMember) (TeamMember, error) {
	ks, err := keys.TeamMember(m.TeamID, m.UserID)
	if err != nil {
		return TeamMember{}, err
	}
	return TeamMember{
		Header:   storage.NewHeader(keys.EntityTeamMember, m.ID, ks),
		TeamID:   m.TeamID,
		UserID:   m.UserID,
		JoinedAt: m.JoinedAt,
		AddedBy:  m.AddedBy,
	}, nil
}

func (r TeamMember) Entity() entities.TeamMember {
	return entities.TeamMember{
		ID:       r.ID,
		TeamID:   r.TeamID,
		UserID:   r.UserID,
		JoinedAt: r.JoinedAt,
		AddedBy:  r.AddedBy,
	}
}

// ---------------------------------------------------------------------------
// Chat / ChatMessage
// ---------------------------------------------------------------------------

type Chat struct {
	storage.Header
	UserEmail     string `dynamodbav:"userEmail"`
	Title         string `dynamodbav:"title"`
	LastMessageAt string `dynamodbav:"lastMessageAt"`
	IsActive      bool   `dynamodbav:"isActive"`
}

func (Chat) Kind() keys.EntityType  { return keys.EntityChat }
func (r Chat) Meta() storage.Header { return r.Header }
func (Chat) isVariant()             {}

// NewChat keys the chat by its creation time, which must already be set.
func NewChat(c entities.Chat) (Chat, error) {
	ks, err := keys.Chat(c.ID, c.UserEmail, c.CreatedAt)
	if err != nil {
		return Chat{}, err
	}
	h := storage.NewHeader(keys.EntityChat, c.ID, ks)
	h.CreatedAt = c.CreatedAt
	return Chat{
		Header:        h,
		UserEmail:     c.UserEmail,
		Title:         c.Title,
		LastMessageAt: c.LastMessageAt,
		IsActive:      c.IsActive,
	}, nil
}

func (r Chat) Entity() entities.Chat {
	return entities.Chat{
		ID:            r.ID,
		UserEmail:     r.UserEmail,
		Title:         r.Title,
		LastMessageAt: r.LastMessageAt,
		IsActive:      r.IsActive,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

type ChatMessage struct {
	storage.Header
	ChatID    string                    `dynamodbav:"chatId"`
	UserEmail string                    `dynamodbav:"userEmail"`
	Content   string                    `dynamodbav:"content"`
	Role      string                    `dynamodbav:"role"`
	Timestamp string                    `dynamodbav:"timestamp"`
	Metadata  *entities.MessageMetadata `dynamodbav:"metadata,omitempty"`
}

func (ChatMessage) Kind() keys.EntityType  { return keys.EntityChatMessage }
func (r ChatMessage) Meta() storage.Header { return r.Header }
func (ChatMessage) isVariant()             {}

func NewChatMessage(m entities.ChatMessage) (ChatMessage, error) {
	ks, err := keys.ChatMessage(m.ID, m.ChatID, m.UserEmail, m.Timestamp)
	if err != nil {
		return ChatMessage{}, err
	}
	return ChatMessage{
		Header:    storage.NewHeader(keys.EntityChatMessage, m.ID, ks),
		ChatID:    m.ChatID,
		UserEmail: m.UserEmail,
		Content:   m.Content,
		Role:      string(m.Role),
		Timestamp: m.Timestamp,
		Metadata:  m.Metadata,
	}, nil
}

func (r ChatMessage) Entity() entities.ChatMessage {
	return entities.ChatMessage{
		ID:        r.ID,
		ChatID:    r.ChatID,
		UserEmail: r.UserEmail,
		Content:   r.Content,
		Role:      entities.MessageRole(r.Role),
		Timestamp: r.Timestamp,
		Metadata:  r.Metadata,
	}
}

// ---------------------------------------------------------------------------
// Picture / Category
// ---------------------------------------------------------------------------

type Picture struct {
	storage.Header
	ContactID   string `dynamodbav:"contactId"`
	Category    string `dynamodbav:"category"`
	Key         string `dynamodbav:"key"`
	ContentType string `dynamodbav:"contentType"`
	Order       int    `dynamodbav:"order"`
}

func (Picture) Kind() keys.EntityType  { return keys.EntityPicture }
func (r Picture) Meta() storage.Header { return r.Header }
func (Picture) isVariant()             {}

func NewPicture(p entities.Picture) (Picture, error) {
	ks, err := keys.Picture(p.ID, p.ContactID, p.Category, p.Order)
	if err != nil {
		return Picture{}, err
	}
	return Picture{
		Header:      storage.NewHeader(keys.EntityPicture, p.ID, ks),
		ContactID:   p.ContactID,
		Category:    p.Category,
		Key:         p.Key,
		ContentType: p.ContentType,
		Order:       p.Order,
	}, nil
}

func (r Picture) Entity() entities.Picture {
	return entities.Picture{
		ID:          r.ID,
		ContactID:   r.ContactID,
		Category:    r.Category,
		Key:         r.Key,
		ContentType: r.ContentType,
		Order:       r.Order,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// Category is the per (contact, category) picture counter.
type Category struct {
	storage.Header
	ContactID     string `dynamodbav:"contactId"`
	Category      string `dynamodbav:"category"`
	TotalPictures int    `dynamodbav:"totalPictures"`
	LastUpdatedAt string `dynamodbav:"lastUpdatedAt"`
}

func (Category) Kind() keys.EntityType  { return keys.EntityCategory }
func (r Category) Meta() storage.Header { return r.Header }
func (Category) isVariant()             {}

func NewCategory(c entities.PictureCategory) (Category, error) {
	ks, err := keys.Category(c.ContactID, c.Category)
	if err != nil {
		return Category{}, err
	}
	return Category{
		Header:        storage.NewHeader(keys.EntityCategory, ks.Primary.PK, ks),
		ContactID:     c.ContactID,
		Category:      c.Category,
		TotalPictures: c.TotalPictures,
		LastUpdatedAt: c.LastUpdatedAt,
	}, nil
}

func (r Category) Entity() entities.PictureCategory {
	return entities.PictureCategory{
		ContactID:     r.ContactID,
		Category:      r.Category,
		TotalPictures: r.TotalPictures,
		LastUpdatedAt: r.LastUpdatedAt,
	}
}
