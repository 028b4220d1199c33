// Package keys derives every primary and secondary index key stored in the
// single table. All functions are pure: the same logical entity always maps
// to the same key strings, and the only failure is a missing identifying
// attribute.
package keys

import (
	"fmt"
	"strings"

	apperrors "github.com/legrandjeremy/maxence-rag/pkg/errors"
)

// EntityType is the on-disk discriminator stored in every record.
// Changing a value is a breaking migration.
type EntityType string

const (
	EntityUser           EntityType = "USER"
	EntityCompany        EntityType = "COMPANY"
	EntityCampaign       EntityType = "CAMPAIGN"
	EntityLesson         EntityType = "LESSON"
	EntityDocument       EntityType = "DOCUMENT"
	EntityLessonDocument EntityType = "LESSON_DOCUMENT"
	EntityUserProgress   EntityType = "USER_PROGRESS"
	EntityTeam           EntityType = "TEAM"
	EntityTeamMember     EntityType = "TEAM_MEMBER"
	EntityChat           EntityType = "CHAT"
	EntityChatMessage    EntityType = "CHAT_MESSAGE"
	EntityPicture        EntityType = "PICTURE"
	EntityCategory       EntityType = "CATEGORY"
)

// AllEntityTypes lists every tag the table may contain.
var AllEntityTypes = []EntityType{
	EntityUser, EntityCompany, EntityCampaign, EntityLesson, EntityDocument,
	EntityLessonDocument, EntityUserProgress, EntityTeam, EntityTeamMember,
	EntityChat, EntityChatMessage, EntityPicture, EntityCategory,
}

// ParseEntityType validates a raw tag.
func ParseEntityType(s string) (EntityType, bool) {
	for _, et := range AllEntityTypes {
		if string(et) == s {
			return et, true
		}
	}
	return "", false
}

// Index names an alternate access path.
type Index string

const (
	IndexA Index = "A"
	IndexB Index = "B"
)

const (
	separator = "#"

	// SortProfile is the sort key of every singleton-per-id record.
	SortProfile = "PROFILE"
	// SortCounter is the sort key of a category counter record.
	SortCounter = "COUNTER"

	PartitionAllCompanies   = "COMPANIES"
	PartitionOrphanDocument = "ORPHAN_DOCUMENTS"

	PrefixOrder   = "ORDER#"
	PrefixMember  = "MEMBER#"
	PrefixMessage = "MESSAGE#"

	// MaxOrdinal is the largest ordinal that fits the zero-padded width.
	MaxOrdinal   = 999
	ordinalWidth = 3
)

// Pair is one partition/sort key pair. A zero Pair means the index is not
// populated for the record.
type Pair struct {
	PK string
	SK string
}

// IsZero reports whether the pair is unset.
func (p Pair) IsZero() bool {
	return p.PK == "" && p.SK == ""
}

// Set carries every key of one record.
type Set struct {
	Primary Pair
	IndexA  Pair
	IndexB  Pair
}

// Join builds a key from '#'-separated parts.
func Join(parts ...string) string {
	return strings.Join(parts, separator)
}

// Ordinal zero-pads an order value so lexicographic and numeric order agree.
func Ordinal(order int) (string, error) {
	if order < 0 || order > MaxOrdinal {
		return "", apperrors.NewInvalidKeyError("ordinal", fmt.Sprintf("order in 0..%d (got %d)", MaxOrdinal, order))
	}
	return fmt.Sprintf("%0*d", ordinalWidth, order), nil
}

// OrderedChild builds "ORDER#<ordinal>#<KIND>#<id>".
func OrderedChild(order int, kind EntityType, id string) (string, error) {
	ord, err := Ordinal(order)
	if err != nil {
		return "", err
	}
	return Join("ORDER", ord, string(kind), id), nil
}

// Entity builds "<KIND>#<id>".
func Entity(kind EntityType, id string) string {
	return Join(string(kind), id)
}

func require(entity EntityType, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperrors.NewInvalidKeyError(string(entity), field)
	}
	return nil
}

func requireAll(entity EntityType, fields ...string) error {
	for i := 0; i+1 < len(fields); i += 2 {
		if err := require(entity, fields[i], fields[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func profile(kind EntityType, id string) Pair {
	return Pair{PK: Entity(kind, id), SK: SortProfile}
}

// Partition helpers used by query paths.

func UserPartition(id string) string         { return Entity(EntityUser, id) }
func EmailPartition(email string) string     { return Join("EMAIL", email) }
func CompanyPartition(id string) string      { return Entity(EntityCompany, id) }
func CampaignPartition(id string) string     { return Entity(EntityCampaign, id) }
func LessonPartition(id string) string       { return Entity(EntityLesson, id) }
func TeamPartition(id string) string         { return Entity(EntityTeam, id) }
func ChatPartition(key string) string        { return Entity(EntityChat, key) }
func CreatedByPartition(actor string) string { return Join("CREATED_BY", actor) }
func ManagerPartition(id string) string      { return Join("MANAGER", id) }
func ContactPartition(contactID string) string {
	return Join("CONTACT", contactID)
}
func ContactCategoryPartition(contactID, category string) string {
	return Join("CONTACT", contactID, "CATEGORY", category)
}

// Profile keys used by point lookups.

func UserKey(id string) Pair           { return profile(EntityUser, id) }
func CompanyKey(id string) Pair        { return profile(EntityCompany, id) }
func CampaignKey(id string) Pair       { return profile(EntityCampaign, id) }
func LessonKey(id string) Pair         { return profile(EntityLesson, id) }
func DocumentKey(id string) Pair       { return profile(EntityDocument, id) }
func LessonDocumentKey(id string) Pair { return profile(EntityLessonDocument, id) }
func TeamKey(id string) Pair           { return profile(EntityTeam, id) }
func UserProgressKey(id string) Pair   { return profile(EntityUserProgress, id) }
func PictureKey(id string) Pair        { return profile(EntityPicture, id) }

// TeamMemberKey is owned by the team partition.
func TeamMemberKey(teamID, userID string) Pair {
	return Pair{PK: TeamPartition(teamID), SK: PrefixMember + userID}
}

// ChatKey is owned by the user's chat partition.
func ChatKey(userEmail, chatID string) Pair {
	return Pair{PK: ChatPartition(userEmail), SK: Entity(EntityChat, chatID)}
}

// CategoryKey addresses the per (contact, category) picture counter.
func CategoryKey(contactID, category string) Pair {
	return Pair{PK: Join("CAT", contactID, category), SK: SortCounter}
}

// UserIndexB is empty when the user has no company.
func UserIndexB(id, companyID string) Pair {
	if companyID == "" {
		return Pair{}
	}
	return Pair{PK: CompanyPartition(companyID), SK: Entity(EntityUser, id)}
}

// User keys: lookup by email on A, company roster on B.
func User(id, email, companyID string) (Set, error) {
	if err := requireAll(EntityUser, "id", id, "email", email); err != nil {
		return Set{}, err
	}
	return Set{
		Primary: UserKey(id),
		IndexA:  Pair{PK: EmailPartition(email), SK: Entity(EntityUser, id)},
		IndexB:  UserIndexB(id, companyID),
	}, nil
}

// Company keys: global listing on A, creator on B.
func Company(id, createdBy string) (Set, error) {
	if err := requireAll(EntityCompany, "id", id, "createdBy", createdBy); err != nil {
		return Set{}, err
	}
	return Set{
		Primary: CompanyKey(id),
		IndexA:  Pair{PK: PartitionAllCompanies, SK: Entity(EntityCompany, id)},
		IndexB:  Pair{PK: CreatedByPartition(createdBy), SK: Entity(EntityCompany, id)},
	}, nil
}

// Campaign keys: company children on A, creator on B.
func Campaign(id, companyID, createdBy string) (Set, error) {
	if err := requireAll(EntityCampaign, "id", id, "companyId", companyID, "createdBy", createdBy); err != nil {
		return Set{}, err
	}
	return Set{
		Primary: CampaignKey(id),
		IndexA:  Pair{PK: CompanyPartition(companyID), SK: Entity(EntityCampaign, id)},
		IndexB:  Pair{PK: CreatedByPartition(createdBy), SK: Entity(EntityCampaign, id)},
	}, nil
}

// LessonIndexA orders lessons within their campaign.
func LessonIndexA(id, campaignID string, order int) (Pair, error) {
	if err := requireAll(EntityLesson, "id", id, "campaignId", campaignID); err != nil {
		return Pair{}, err
	}
	sk, err := OrderedChild(order, EntityLesson, id)
	if err != nil {
		return Pair{}, err
	}
	return Pair{PK: CampaignPartition(campaignID), SK: sk}, nil
}

// Lesson keys: ordered campaign children on A, creator on B.
func Lesson(id, campaignID, createdBy string, order int) (Set, error) {
	if err := require(EntityLesson, "createdBy", createdBy); err != nil {
		return Set{}, err
	}
	a, err := LessonIndexA(id, campaignID, order)
	if err != nil {
		return Set{}, err
	}
	return Set{
		Primary: LessonKey(id),
		IndexA:  a,
		IndexB:  Pair{PK: CreatedByPartition(createdBy), SK: Entity(EntityLesson, id)},
	}, nil
}

// DocumentParent picks the index A partition of a document: its campaign,
// else its lesson, else the shared orphan partition.
func DocumentParent(campaignID, lessonID string) string {
	switch {
	case campaignID != "":
		return CampaignPartition(campaignID)
	case lessonID != "":
		return LessonPartition(lessonID)
	default:
		return PartitionOrphanDocument
	}
}

// DocumentIndexA orders documents within their parent.
func DocumentIndexA(id, campaignID, lessonID string, order int) (Pair, error) {
	if err := require(EntityDocument, "id", id); err != nil {
		return Pair{}, err
	}
	sk, err := OrderedChild(order, EntityDocument, id)
	if err != nil {
		return Pair{}, err
	}
	return Pair{PK: DocumentParent(campaignID, lessonID), SK: sk}, nil
}

// Document keys. Parentage lives only in index A, so moving a document
// between parents never touches its primary key.
func Document(id, campaignID, lessonID, createdBy string, order int) (Set, error) {
	if err := require(EntityDocument, "createdBy", createdBy); err != nil {
		return Set{}, err
	}
	a, err := DocumentIndexA(id, campaignID, lessonID, order)
	if err != nil {
		return Set{}, err
	}
	return Set{
		Primary: DocumentKey(id),
		IndexA:  a,
		IndexB:  Pair{PK: CreatedByPartition(createdBy), SK: Entity(EntityDocument, id)},
	}, nil
}

// LessonDocumentIndexA orders lesson documents within their lesson. The
// DOCUMENT child kind is shared with plain documents, so reads filter on
// EntityType.
func LessonDocumentIndexA(id, lessonID string, order int) (Pair, error) {
	if err := requireAll(EntityLessonDocument, "id", id, "lessonId", lessonID); err != nil {
		return Pair{}, err
	}
	sk, err := OrderedChild(order, EntityDocument, id)
	if err != nil {
		return Pair{}, err
	}
	return Pair{PK: LessonPartition(lessonID), SK: sk}, nil
}

// LessonDocument keys.
func LessonDocument(id, lessonID, createdBy string, order int) (Set, error) {
	if err := require(EntityLessonDocument, "createdBy", createdBy); err != nil {
		return Set{}, err
	}
	a, err := LessonDocumentIndexA(id, lessonID, order)
	if err != nil {
		return Set{}, err
	}
	return Set{
		Primary: LessonDocumentKey(id),
		IndexA:  a,
		IndexB:  Pair{PK: CreatedByPartition(createdBy), SK: Entity(EntityLessonDocument, id)},
	}, nil
}

// TeamIndexB is empty when the team has no manager.
func TeamIndexB(id, managerID string) Pair {
	if managerID == "" {
		return Pair{}
	}
	return Pair{PK: ManagerPartition(managerID), SK: Entity(EntityTeam, id)}
}

// Team keys: company children on A, manager on B.
func Team(id, companyID, managerID string) (Set, error) {
	if err := requireAll(EntityTeam, "id", id, "companyId", companyID); err != nil {
		return Set{}, err
	}
	return Set{
		Primary: TeamKey(id),
		IndexA:  Pair{PK: CompanyPartition(companyID), SK: Entity(EntityTeam, id)},
		IndexB:  TeamIndexB(id, managerID),
	}, nil
}

// TeamMember keys: membership owned by the team, user lookup on A.
func TeamMember(teamID, userID string) (Set, error) {
	if err := requireAll(EntityTeamMember, "teamId", teamID, "userId", userID); err != nil {
		return Set{}, err
	}
	return Set{
		Primary: TeamMemberKey(teamID, userID),
		IndexA:  Pair{PK: UserPartition(userID), SK: Entity(EntityTeam, teamID)},
	}, nil
}

// ProgressLessonSort is the index A sort key of one user's lesson progress.
func ProgressLessonSort(campaignID, lessonID string) string {
	return Join(string(EntityCampaign), campaignID, string(EntityLesson), lessonID)
}

// UserProgress keys: per-user on A, per-campaign on B.
func UserProgress(id, userID, campaignID, lessonID string) (Set, error) {
	if err := requireAll(EntityUserProgress, "id", id, "userId", userID, "campaignId", campaignID, "lessonId", lessonID); err != nil {
		return Set{}, err
	}
	return Set{
		Primary: UserProgressKey(id),
		IndexA:  Pair{PK: UserPartition(userID), SK: ProgressLessonSort(campaignID, lessonID)},
		IndexB: Pair{
			PK: CampaignPartition(campaignID),
			SK: Join(string(EntityUser), userID, string(EntityLesson), lessonID),
		},
	}, nil
}

// Chat keys: owned by the user's email, listed by creation time on A.
func Chat(chatID, userEmail, createdAt string) (Set, error) {
	if err := requireAll(EntityChat, "id", chatID, "userEmail", userEmail, "createdAt", createdAt); err != nil {
		return Set{}, err
	}
	return Set{
		Primary: ChatKey(userEmail, chatID),
		IndexA:  Pair{PK: UserPartition(userEmail), SK: Entity(EntityChat, createdAt)},
	}, nil
}

// ChatMessage keys: ordered by timestamp inside the chat partition.
func ChatMessage(messageID, chatID, userEmail, timestamp string) (Set, error) {
	if err := requireAll(EntityChatMessage, "id", messageID, "chatId", chatID, "userEmail", userEmail, "timestamp", timestamp); err != nil {
		return Set{}, err
	}
	return Set{
		Primary: Pair{PK: ChatPartition(chatID), SK: PrefixMessage + Join(timestamp, messageID)},
		IndexA:  Pair{PK: UserPartition(userEmail), SK: PrefixMessage + timestamp},
	}, nil
}

// PictureIndexA orders pictures within (contact, category).
func PictureIndexA(id, contactID, category string, order int) (Pair, error) {
	if err := requireAll(EntityPicture, "id", id, "contactId", contactID, "category", category); err != nil {
		return Pair{}, err
	}
	sk, err := OrderedChild(order, EntityPicture, id)
	if err != nil {
		return Pair{}, err
	}
	return Pair{PK: ContactCategoryPartition(contactID, category), SK: sk}, nil
}

// Picture keys: category listing on A, contact listing on B.
func Picture(id, contactID, category string, order int) (Set, error) {
	a, err := PictureIndexA(id, contactID, category, order)
	if err != nil {
		return Set{}, err
	}
	return Set{
		Primary: PictureKey(id),
		IndexA:  a,
		IndexB:  Pair{PK: ContactPartition(contactID), SK: Entity(EntityPicture, id)},
	}, nil
}

// Category keys: listed per contact on A.
func Category(contactID, category string) (Set, error) {
	if err := requireAll(EntityCategory, "contactId", contactID, "category", category); err != nil {
		return Set{}, err
	}
	return Set{
		Primary: CategoryKey(contactID, category),
		IndexA:  Pair{PK: ContactPartition(contactID), SK: Entity(EntityCategory, category)},
	}, nil
}
