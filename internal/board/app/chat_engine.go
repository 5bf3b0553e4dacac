package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"collab_board_service/internal/board/channel"
	"collab_board_service/internal/board/domain"
	"collab_board_service/internal/board/repository"
	"collab_board_service/pkg/logger"

	"go.uber.org/zap"
)

// ChatEngine owns one session's chat timeline for a room: an ascending list
// of messages, paged backwards from the newest, kept live through the table
// change feed. Own sends are appended optimistically and the change feed
// echo is deduplicated by message id.
type ChatEngine struct {
	room        string
	userID      string
	displayName string
	repo        repository.MessageRepository
	ch          channel.RoomChannel

	mu       sync.Mutex
	messages []domain.ChatMessage
	known    map[string]int // message id -> index in messages
	hasMore  bool
	pinned   bool
}

// NewChatEngine wires the chat change-feed handlers onto ch. Handlers must
// be registered before the channel subscribes.
func NewChatEngine(room, userID, displayName string, repo repository.MessageRepository, ch channel.RoomChannel) *ChatEngine {
	e := &ChatEngine{
		room:        room,
		userID:      userID,
		displayName: displayName,
		repo:        repo,
		ch:          ch,
		known:       make(map[string]int),
		pinned:      true,
	}
	ch.OnTableChange(domain.TableChatMessages, e.messageRoomFilter, e.onMessageChange)
	ch.OnTableChange(domain.TableChatReactions, nil, e.onReactionChange)
	return e
}

// messageRoomFilter drops change rows for other rooms before they reach the
// handler.
func (e *ChatEngine) messageRoomFilter(row json.RawMessage) bool {
	var head struct {
		RoomName string `json:"room_name"`
	}
	if err := json.Unmarshal(row, &head); err != nil {
		return false
	}
	return head.RoomName == e.room
}

// Hydrate loads the newest page of history. HasMoreMessages reports whether
// older pages remain.
func (e *ChatEngine) Hydrate(ctx context.Context) error {
	page, err := e.repo.LoadMessagesPage(ctx, e.room, e.userID, nil)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.messages = e.messages[:0]
	e.known = make(map[string]int, len(page))
	// page arrives newest-first; the timeline is kept ascending
	for i := len(page) - 1; i >= 0; i-- {
		e.known[page[i].ID] = len(e.messages)
		e.messages = append(e.messages, page[i])
	}
	e.hasMore = len(page) == domain.MessagesPerPage
	return nil
}

// FetchMessages loads the page older than the current oldest message and
// prepends it. A no-op when the history is exhausted.
func (e *ChatEngine) FetchMessages(ctx context.Context) error {
	e.mu.Lock()
	if !e.hasMore {
		e.mu.Unlock()
		return nil
	}
	var before *time.Time
	if len(e.messages) > 0 {
		t := e.messages[0].CreatedAt
		before = &t
	}
	e.mu.Unlock()

	page, err := e.repo.LoadMessagesPage(ctx, e.room, e.userID, before)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	older := make([]domain.ChatMessage, 0, len(page))
	for i := len(page) - 1; i >= 0; i-- {
		if _, dup := e.known[page[i].ID]; dup {
			continue
		}
		older = append(older, page[i])
	}
	e.messages = append(older, e.messages...)
	e.reindex()
	e.hasMore = len(page) == domain.MessagesPerPage
	return nil
}

// SendMessage persists one message and appends it to the timeline before
// the change feed echoes it back.
func (e *ChatEngine) SendMessage(ctx context.Context, content string) (*domain.ChatMessage, error) {
	if !e.ch.Subscribed() {
		return nil, domain.ErrNotConnected
	}
	if e.userID == "" {
		return nil, domain.ErrAuth
	}

	msg, err := e.repo.AppendMessage(ctx, e.room, content, e.userID, e.displayName)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if _, dup := e.known[msg.ID]; !dup {
		e.known[msg.ID] = len(e.messages)
		e.messages = append(e.messages, *msg)
	}
	e.mu.Unlock()
	return msg, nil
}

// ToggleReaction flips this user's like on a message. The local summary is
// adjusted immediately, then replaced by the authoritative recount so
// concurrent toggles from other sessions cannot leave it skewed.
func (e *ChatEngine) ToggleReaction(ctx context.Context, messageID string) error {
	e.mu.Lock()
	if idx, ok := e.known[messageID]; ok {
		m := &e.messages[idx]
		if m.Reactions.HasReacted {
			m.Reactions.Count--
			m.Reactions.HasReacted = false
		} else {
			m.Reactions.Count++
			m.Reactions.HasReacted = true
		}
	}
	e.mu.Unlock()

	if _, err := e.repo.ToggleReaction(ctx, messageID, e.userID); err != nil {
		return err
	}

	summary, err := e.repo.ReactionSummary(ctx, messageID, e.userID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if idx, ok := e.known[messageID]; ok {
		e.messages[idx].Reactions = summary
	}
	e.mu.Unlock()
	return nil
}

// Messages returns the timeline oldest-first.
func (e *ChatEngine) Messages() []domain.ChatMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.ChatMessage(nil), e.messages...)
}

// HasMoreMessages reports whether older pages remain to fetch.
func (e *ChatEngine) HasMoreMessages() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasMore
}

// SetPinnedToBottom records whether the session follows new messages.
func (e *ChatEngine) SetPinnedToBottom(pinned bool) {
	e.mu.Lock()
	e.pinned = pinned
	e.mu.Unlock()
}

// PinnedToBottom reports whether new messages should scroll into view.
func (e *ChatEngine) PinnedToBottom() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pinned
}

func (e *ChatEngine) reindex() {
	e.known = make(map[string]int, len(e.messages))
	for i, m := range e.messages {
		e.known[m.ID] = i
	}
}

func (e *ChatEngine) onMessageChange(row json.RawMessage) {
	var change domain.MessageChange
	if err := json.Unmarshal(row, &change); err != nil {
		logger.Log.Warn("drop malformed message change", zap.String("room", e.room), zap.Error(err))
		return
	}

	createdAt, err := time.Parse(time.RFC3339Nano, change.CreatedAt)
	if err != nil {
		logger.Log.Warn("drop message change with bad timestamp", zap.String("id", change.ID), zap.Error(err))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, dup := e.known[change.ID]; dup {
		return
	}
	e.known[change.ID] = len(e.messages)
	e.messages = append(e.messages, domain.ChatMessage{
		ID:          change.ID,
		RoomName:    change.RoomName,
		Content:     change.Content,
		DisplayName: change.DisplayName,
		UserID:      change.UserID,
		CreatedAt:   createdAt,
	})
}

func (e *ChatEngine) onReactionChange(row json.RawMessage) {
	var change domain.ReactionChange
	if err := json.Unmarshal(row, &change); err != nil {
		logger.Log.Warn("drop malformed reaction change", zap.String("room", e.room), zap.Error(err))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	idx, ok := e.known[change.MessageID]
	if !ok {
		return
	}
	m := &e.messages[idx]

	if change.UserID == e.userID {
		// own toggles are settled by the authoritative recount
		return
	}
	if change.Removed {
		if m.Reactions.Count > 0 {
			m.Reactions.Count--
		}
	} else {
		m.Reactions.Count++
	}
}
