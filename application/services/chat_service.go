package services

import (
	"context"
	"sort"

	"github.com/legrandjeremy/maxence-rag/application/ports"
	"github.com/legrandjeremy/maxence-rag/domain/core/entities"
	"github.com/legrandjeremy/maxence-rag/domain/keys"
	storage "github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb"
	"github.com/legrandjeremy/maxence-rag/infrastructure/persistence/records"
	apperrors "github.com/legrandjeremy/maxence-rag/pkg/errors"
	"github.com/legrandjeremy/maxence-rag/pkg/utils"

	"go.uber.org/zap"
)

const (
	DefaultChatListLimit    = 20
	DefaultChatHistoryLimit = 50
)

// ChatService stores conversations and their messages. Chats live in the
// owner's partition; messages live in the chat's partition.
type ChatService struct {
	base
}

func NewChatService(store ports.Store, logger *zap.Logger) *ChatService {
	return &ChatService{base: newBase(store, logger, "chats")}
}

// Create opens a chat. An empty title becomes "Chat <date>".
func (s *ChatService) Create(ctx context.Context, userEmail, title string) (entities.Chat, error) {
	if userEmail == "" {
		return entities.Chat{}, apperrors.NewValidationError("user email is required")
	}
	now := s.store.Now()
	if title == "" {
		title = "Chat " + now[:len("2006-01-02")]
	}
	rec, err := records.NewChat(entities.Chat{
		ID:            s.newID(),
		UserEmail:     userEmail,
		Title:         title,
		LastMessageAt: now,
		IsActive:      true,
		CreatedAt:     now,
	})
	if err != nil {
		return entities.Chat{}, err
	}
	created, err := createAs(ctx, s.store, rec)
	if err != nil {
		return entities.Chat{}, err
	}
	return created.Entity(), nil
}

// GetByID returns an active chat; deleted chats are NotFound.
func (s *ChatService) GetByID(ctx context.Context, userEmail, chatID string) (entities.Chat, error) {
	p := keys.ChatKey(userEmail, chatID)
	rec, err := getAs[records.Chat](ctx, s.store, "chat", p)
	if err != nil {
		return entities.Chat{}, err
	}
	if !rec.IsActive {
		return entities.Chat{}, apperrors.NewNotFoundError("chat", p.PK, p.SK)
	}
	return rec.Entity(), nil
}

// ListByUser returns the user's active chats, most recent activity first.
// limit counts chats read from the index, before inactive ones are dropped.
func (s *ChatService) ListByUser(ctx context.Context, userEmail string, limit int32) ([]entities.Chat, error) {
	if limit <= 0 {
		limit = DefaultChatListLimit
	}
	recs, err := queryIndexAs[records.Chat](ctx, s.store, keys.IndexA, keys.UserPartition(userEmail), storage.SortBeginsWith(string(keys.EntityChat)+"#"), limit)
	if err != nil {
		return nil, err
	}
	chats := filterSlice(mapSlice(recs, records.Chat.Entity), func(c entities.Chat) bool { return c.IsActive })
	sort.SliceStable(chats, func(i, j int) bool { return chats[i].LastMessageAt > chats[j].LastMessageAt })
	return chats, nil
}

func (s *ChatService) Rename(ctx context.Context, userEmail, chatID, title string) (entities.Chat, error) {
	if title == "" {
		return entities.Chat{}, apperrors.NewValidationError("title is required")
	}
	rec, err := updateAs[records.Chat](ctx, s.store, "chat", keys.ChatKey(userEmail, chatID), storage.NewUpdate().Set("title", title))
	if err != nil {
		return entities.Chat{}, err
	}
	return rec.Entity(), nil
}

// Touch moves the chat's lastMessageAt to at.
func (s *ChatService) Touch(ctx context.Context, userEmail, chatID, at string) error {
	_, err := updateAs[records.Chat](ctx, s.store, "chat", keys.ChatKey(userEmail, chatID), storage.NewUpdate().Set(records.AttrLastMessageAt, at))
	return err
}

// Delete deactivates the chat; its messages are kept.
func (s *ChatService) Delete(ctx context.Context, userEmail, chatID string) error {
	_, err := updateAs[records.Chat](ctx, s.store, "chat", keys.ChatKey(userEmail, chatID), storage.NewUpdate().Set(records.AttrIsActive, false))
	return err
}

// AppendMessage stores a message in an active chat and touches the chat.
func (s *ChatService) AppendMessage(ctx context.Context, in entities.AppendMessageInput) (entities.ChatMessage, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return entities.ChatMessage{}, err
	}
	if _, err := s.GetByID(ctx, in.UserEmail, in.ChatID); err != nil {
		return entities.ChatMessage{}, err
	}
	rec, err := records.NewChatMessage(entities.ChatMessage{
		ID:        s.newID(),
		ChatID:    in.ChatID,
		UserEmail: in.UserEmail,
		Content:   in.Content,
		Role:      in.Role,
		Timestamp: s.store.Now(),
		Metadata:  in.Metadata,
	})
	if err != nil {
		return entities.ChatMessage{}, err
	}
	created, err := createAs(ctx, s.store, rec)
	if err != nil {
		return entities.ChatMessage{}, err
	}
	if err := s.Touch(ctx, in.UserEmail, in.ChatID, created.Timestamp); err != nil {
		s.logger.Warn("Message stored but chat not touched",
			zap.String("chatID", in.ChatID),
			zap.Error(err),
		)
		return created.Entity(), err
	}
	return created.Entity(), nil
}

// History returns up to limit messages of a chat in chronological order.
func (s *ChatService) History(ctx context.Context, chatID string, limit int32) ([]entities.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultChatHistoryLimit
	}
	recs, err := queryPrimaryAs[records.ChatMessage](ctx, s.store, keys.ChatPartition(chatID), keys.PrefixMessage, limit)
	if err != nil {
		return nil, err
	}
	msgs := mapSlice(recs, records.ChatMessage.Entity)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp < msgs[j].Timestamp })
	return msgs, nil
}
