package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/stevemurr/grocery-chat-server/assistant"
	"github.com/stevemurr/grocery-chat-server/record"
)

const maxTitleRunes = 100

// Message is one turn of a chat.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat is the decoded form of a chat record.
type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt string    `json:"createdAt,omitempty"`
	UpdatedAt string    `json:"updatedAt,omitempty"`
	SharePath string    `json:"sharePath,omitempty"`
}

func chatFrom(rec record.Record) (Chat, error) {
	c := Chat{
		ID:        rec.ID(),
		UserID:    rec.Owner(),
		Title:     rec["title"],
		CreatedAt: rec["createdAt"],
		UpdatedAt: rec["updatedAt"],
		SharePath: rec["sharePath"],
		Messages:  []Message{},
	}
	if raw := rec["messages"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Messages); err != nil {
			return Chat{}, fmt.Errorf("chat %s: decode messages: %w", c.ID, err)
		}
	}
	return c, nil
}

func encodeMessages(msgs []Message) (string, error) {
	b, err := json.Marshal(msgs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ChatService manages chats and forwards new messages to the assistant.
type ChatService struct {
	engine    *record.Engine
	users     *UserService
	assistant assistant.Assistant
	now       func() time.Time
	logger    *slog.Logger
}

func NewChatService(e *record.Engine, users *UserService, a assistant.Assistant, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	if a == nil {
		a = assistant.Disabled{}
	}
	return &ChatService{engine: e, users: users, assistant: a, now: time.Now, logger: logger}
}

func (c *ChatService) timestamp() string {
	return c.now().UTC().Format(time.RFC3339Nano)
}

// Create starts a chat titled after the first message.
func (c *ChatService) Create(ctx context.Context, owner string, messages []Message) (Chat, error) {
	if len(messages) == 0 {
		return Chat{}, ErrEmptyChat
	}
	encoded, err := encodeMessages(messages)
	if err != nil {
		return Chat{}, err
	}
	now := c.timestamp()
	rec, err := c.engine.CreateOwned(ctx, Chats, owner, map[string]string{
		"title":     title(messages[0].Content),
		"messages":  encoded,
		"createdAt": now,
		"updatedAt": now,
	})
	if err != nil {
		return Chat{}, err
	}
	return chatFrom(rec)
}

func (c *ChatService) List(ctx context.Context, owner string) ([]Chat, error) {
	recs, err := c.engine.ListOwned(ctx, Chats, owner)
	if err != nil {
		return nil, err
	}
	out := make([]Chat, 0, len(recs))
	for _, rec := range recs {
		chat, err := chatFrom(rec)
		if err != nil {
			c.logger.Warn("skipping unreadable chat", "id", rec.ID(), "error", err)
			continue
		}
		out = append(out, chat)
	}
	return out, nil
}

func (c *ChatService) Get(ctx context.Context, owner, id string) (Chat, error) {
	rec, err := c.engine.FetchOwned(ctx, Chats, owner, id)
	if err != nil {
		return Chat{}, err
	}
	return chatFrom(rec)
}

func (c *ChatService) Delete(ctx context.Context, owner, id string) error {
	return c.engine.DeleteOwned(ctx, Chats, owner, id)
}

// DeleteAll removes every chat of owner and returns how many were removed.
func (c *ChatService) DeleteAll(ctx context.Context, owner string) (int, error) {
	return c.engine.DeleteAllOwned(ctx, Chats, owner)
}

// Reply sends content to the assistant with the owner's preferences and
// appends both the message and the answer to the chat.
func (c *ChatService) Reply(ctx context.Context, owner, id, content string) (Chat, error) {
	chat, err := c.Get(ctx, owner, id)
	if err != nil {
		return Chat{}, err
	}
	prefs, err := c.users.Preferences(ctx, owner)
	if err != nil {
		return Chat{}, err
	}
	answer, err := c.ask(ctx, content, prefs)
	if err != nil {
		return Chat{}, err
	}

	messages := append(chat.Messages,
		Message{Role: "user", Content: content},
		Message{Role: "assistant", Content: answer},
	)
	encoded, err := encodeMessages(messages)
	if err != nil {
		return Chat{}, err
	}
	rec, err := c.engine.UpdateOwned(ctx, Chats, owner, id, map[string]string{
		"messages":  encoded,
		"updatedAt": c.timestamp(),
	})
	if err != nil {
		return Chat{}, err
	}
	return chatFrom(rec)
}

// Sample answers content with the given preferences. Nothing is stored.
func (c *ChatService) Sample(ctx context.Context, content string, prefs Preferences) (string, error) {
	return c.ask(ctx, content, prefs)
}

func (c *ChatService) ask(ctx context.Context, content string, prefs Preferences) (string, error) {
	answer, err := c.assistant.Complete(ctx, assistant.Prompt{
		System: assistant.Instruction(),
		User:   assistant.BuildPrompt(content, prefs.Categories(), prefs.Other),
	})
	if err != nil {
		return "", fmt.Errorf("assistant: %w", err)
	}
	return answer, nil
}

// Share publishes the chat at /share/<id> and returns that path.
func (c *ChatService) Share(ctx context.Context, owner, id string) (string, error) {
	path := "/share/" + id
	if _, err := c.engine.UpdateOwned(ctx, Chats, owner, id, map[string]string{"sharePath": path}); err != nil {
		return "", err
	}
	return path, nil
}

// Shared returns a chat that was shared, whoever owns it.
func (c *ChatService) Shared(ctx context.Context, id string) (Chat, error) {
	rec, err := c.engine.Get(ctx, Chats, id)
	if err != nil {
		return Chat{}, err
	}
	if rec["sharePath"] == "" {
		return Chat{}, record.ErrNotFound
	}
	return chatFrom(rec)
}

func title(content string) string {
	r := []rune(content)
	if len(r) > maxTitleRunes {
		r = r[:maxTitleRunes]
	}
	return string(r)
}
