package entities

// MessageRole identifies who wrote a chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Chat is a conversation owned by a user, keyed by the user's email.
type Chat struct {
	ID            string `json:"id"`
	UserEmail     string `json:"userEmail"`
	Title         string `json:"title"`
	LastMessageAt string `json:"lastMessageAt"`
	IsActive      bool   `json:"isActive"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

// MessageMetadata is attached to generated answers.
type MessageMetadata struct {
	SourceDocuments []string `json:"sourceDocuments,omitempty" dynamodbav:"sourceDocuments,omitempty"`
	Confidence      float64  `json:"confidence,omitempty" dynamodbav:"confidence,omitempty"`
	ProcessingTime  int64    `json:"processingTime,omitempty" dynamodbav:"processingTime,omitempty"`
}

// ChatMessage is one turn of a chat.
type ChatMessage struct {
	ID        string           `json:"id"`
	ChatID    string           `json:"chatId"`
	UserEmail string           `json:"userEmail"`
	Content   string           `json:"content"`
	Role      MessageRole      `json:"role"`
	Timestamp string           `json:"timestamp"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

type AppendMessageInput struct {
	ChatID    string           `json:"chatId" validate:"required"`
	UserEmail string           `json:"userEmail" validate:"required,email"`
	Content   string           `json:"content" validate:"required"`
	Role      MessageRole      `json:"role" validate:"required,oneof=user assistant"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}
