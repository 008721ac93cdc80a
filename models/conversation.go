package models

import "time"

// RecordSchemaVersion is bumped whenever ConversationRecord changes shape.
const RecordSchemaVersion = 1

const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// Turn is one user/bot exchange. The opening turn has an empty UserText.
type Turn struct {
	UserText string `json:"user"`
	BotText  string `json:"bot"`
}

type StoredMessage struct {
	Sender  string `json:"sender" bson:"sender" jsonschema:"enum=user,enum=bot"`
	Message string `json:"message" bson:"message"`
}

// ConversationRecord is the persisted form of a session.
type ConversationRecord struct {
	SchemaVersion int               `json:"schema_version" bson:"schema_version" jsonschema:"required"`
	SessionID     string            `json:"session_id" bson:"session_id" jsonschema:"required"`
	Owner         string            `json:"user_email" bson:"user_email" jsonschema:"required,description=Opaque owner identifier (user email)"`
	Topic         string            `json:"topic" bson:"topic" jsonschema:"required"`
	Category      string            `json:"category,omitempty" bson:"category,omitempty"`
	Variant       string            `json:"variant" bson:"variant"`
	Turns         []StoredMessage   `json:"turns" bson:"turns"`
	Evaluation    *EvaluationResult `json:"evaluation,omitempty" bson:"evaluation,omitempty"`
	CreatedAt     time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" bson:"updated_at"`
}

// MessageLogEntry is a single exchange appended to the per-message log.
type MessageLogEntry struct {
	SessionID string    `json:"session_id" bson:"session_id"`
	Owner     string    `json:"user_email" bson:"user_email"`
	UserText  string    `json:"user" bson:"user"`
	BotText   string    `json:"bot" bson:"bot"`
	Topic     string    `json:"topic" bson:"topic"`
	Category  string    `json:"category,omitempty" bson:"category,omitempty"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// TurnsToMessages flattens turns into sender/message pairs, skipping the empty
// user side of the opening turn.
func TurnsToMessages(turns []Turn) []StoredMessage {
	messages := make([]StoredMessage, 0, len(turns)*2)
	for _, turn := range turns {
		if turn.UserText != "" {
			messages = append(messages, StoredMessage{Sender: SenderUser, Message: turn.UserText})
		}
		messages = append(messages, StoredMessage{Sender: SenderBot, Message: turn.BotText})
	}
	return messages
}

type StartPredefinedRequest struct {
	Category  string `json:"category"`
	Topic     string `json:"topic"`
	UserEmail string `json:"user_email"`
}

type StartCustomRequest struct {
	CustomTopic string `json:"custom_topic"`
	UserEmail   string `json:"user_email"`
}

type StartConversationResponse struct {
	SessionID string `json:"session_id"`
	BotIntro  string `json:"bot_intro"`
}

type SendMessageRequest struct {
	UserEmail string `json:"user_email"`
	Message   string `json:"message"`
}

type SendMessageResponse struct {
	BotReply     string `json:"bot_reply"`
	Conversation []Turn `json:"conversation"`
	TurnCount    int    `json:"turn_count"`
	Finished     bool   `json:"finished"`
}

type EvaluateResponse struct {
	Evaluation string           `json:"evaluation"`
	Scores     []CriterionScore `json:"scores,omitempty"`
}
