package agent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role records which participant produced a message. It is provenance, not authorization.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleSystem     Role = "system"
	RoleResearcher Role = "researcher"
	RoleAnalyzer   Role = "analyzer"
	RoleFormatter  Role = "formatter"
)

// Message is the envelope exchanged between stages.
// A Message is immutable once constructed; derived messages are always new values.
// Accessors return copies of any reference-typed data.
type Message struct {
	id        string
	role      Role
	content   string
	metadata  Metadata
	timestamp time.Time
}

// MessageOption customizes a message at construction time.
type MessageOption func(*Message)

// WithMetadata attaches metadata to the message. The map is copied.
func WithMetadata(md Metadata) MessageOption {
	return func(m *Message) {
		for k, v := range md {
			m.metadata[k] = v
		}
	}
}

// WithMetadataValue sets a single metadata key.
func WithMetadataValue(key string, value any) MessageOption {
	return func(m *Message) {
		m.metadata[key] = value
	}
}

// WithTimestamp overrides the creation timestamp.
func WithTimestamp(ts time.Time) MessageOption {
	return func(m *Message) {
		m.timestamp = ts.UTC()
	}
}

// WithID overrides the generated message ID.
func WithID(id string) MessageOption {
	return func(m *Message) {
		if id != "" {
			m.id = id
		}
	}
}

// NewMessage creates a message with the given role and content.
// A unique ID, a UTC timestamp and an empty metadata map are filled in automatically.
//
//	msg := agent.NewMessage(agent.RoleUser, "climate change impacts",
//	    agent.WithMetadataValue(agent.KeyQueryType, "search"))
func NewMessage(role Role, content string, opts ...MessageOption) *Message {
	m := &Message{
		id:        uuid.New().String(),
		role:      role,
		content:   content,
		metadata:  make(Metadata),
		timestamp: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ID returns the message identifier.
func (m *Message) ID() string { return m.id }

// Role returns the role of the producer.
func (m *Message) Role() Role { return m.role }

// Content returns the message text.
func (m *Message) Content() string { return m.content }

// Timestamp returns the creation time in UTC.
func (m *Message) Timestamp() time.Time { return m.timestamp }

// Metadata returns a shallow copy of the message metadata.
func (m *Message) Metadata() Metadata {
	return m.metadata.Clone()
}

// GetMetadata retrieves metadata by key, returning the default value if not found.
func (m *Message) GetMetadata(key string, defaultValue any) any {
	if val, ok := m.metadata[key]; ok {
		return val
	}
	return defaultValue
}

// GetMetadataString is a convenience method to get metadata as a string.
func (m *Message) GetMetadataString(key, defaultValue string) string {
	return m.metadata.String(key, defaultValue)
}

// GetMetadataStrings returns a string list stored under key, or nil.
func (m *Message) GetMetadataStrings(key string) []string {
	return m.metadata.Strings(key)
}

// Derive builds a new message that keeps this message's metadata, overlaid with extra.
func (m *Message) Derive(role Role, content string, extra Metadata) *Message {
	md := m.metadata.Clone()
	for k, v := range extra {
		md[k] = v
	}
	return NewMessage(role, content, WithMetadata(md))
}

type messageJSON struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MarshalJSON encodes the message for history endpoints and logs.
func (m *Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageJSON{
		ID:        m.id,
		Role:      m.role,
		Content:   m.content,
		Metadata:  m.metadata,
		Timestamp: m.timestamp,
	})
}

// UnmarshalJSON decodes a message previously produced by MarshalJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Metadata == nil {
		raw.Metadata = make(Metadata)
	}
	*m = Message{
		id:        raw.ID,
		role:      raw.Role,
		content:   raw.Content,
		metadata:  raw.Metadata,
		timestamp: raw.Timestamp,
	}
	return nil
}

// String returns a human-readable representation of the message for debugging.
func (m *Message) String() string {
	return fmt.Sprintf("Message{ID:%s, Role:%s, Timestamp:%s}", m.id, m.role, m.timestamp.Format(time.RFC3339))
}
