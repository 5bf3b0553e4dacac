package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"collab_board_service/internal/board/channel"
	"collab_board_service/internal/board/domain"
	"collab_board_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MessageRepository durable storage of chat messages and reaction toggles
type MessageRepository interface {
	// AppendMessage validates, stores and returns one chat message
	AppendMessage(ctx context.Context, room, content, authorID, displayName string) (*domain.ChatMessage, error)
	// LoadMessagesPage returns up to MessagesPerPage messages newest-first,
	// optionally only those strictly older than before. Reaction summaries
	// are computed for userID.
	LoadMessagesPage(ctx context.Context, room, userID string, before *time.Time) ([]domain.ChatMessage, error)
	// ToggleReaction flips the (message, user) like; returns whether it was added
	ToggleReaction(ctx context.Context, messageID, userID string) (bool, error)
	// ReactionSummary recomputes the authoritative reaction state for userID
	ReactionSummary(ctx context.Context, messageID, userID string) (domain.ReactionSummary, error)
}

type messageRow struct {
	ID          string    `gorm:"primaryKey;type:uuid"`
	RoomName    string    `gorm:"not null;index:idx_chat_room_created"`
	Content     string    `gorm:"not null"`
	DisplayName string    `gorm:"not null"`
	UserID      string    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index:idx_chat_room_created"`
}

func (messageRow) TableName() string { return "chat_messages" }

type reactionRow struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	MessageID string `gorm:"not null;uniqueIndex:idx_reaction_message_user"`
	UserID    string `gorm:"not null;uniqueIndex:idx_reaction_message_user"`
	Reaction  string `gorm:"not null;uniqueIndex:idx_reaction_message_user"`
}

func (reactionRow) TableName() string { return "chat_message_reactions" }

type messageRepository struct {
	db  *gorm.DB
	pub channel.Publisher
}

// NewMessageRepository create a MessageRepository over postgres. Committed
// rows are replayed on the change feed through pub.
func NewMessageRepository(db *gorm.DB, pub channel.Publisher) MessageRepository {
	return &messageRepository{db: db, pub: pub}
}

// Migrate creates the board tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&drawingRow{}, &messageRow{}, &reactionRow{})
}

func (r *messageRepository) AppendMessage(ctx context.Context, room, content, authorID, displayName string) (*domain.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty message content", domain.ErrValidation)
	}
	if authorID == "" {
		return nil, domain.ErrAuth
	}

	row := messageRow{
		ID:          uuid.New().String(),
		RoomName:    room,
		Content:     content,
		DisplayName: displayName,
		UserID:      authorID,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("%w: append message: %v", domain.ErrPersistence, err)
	}

	if r.pub != nil {
		change := domain.MessageChange{
			ID:          row.ID,
			RoomName:    row.RoomName,
			Content:     row.Content,
			DisplayName: row.DisplayName,
			UserID:      row.UserID,
			CreatedAt:   row.CreatedAt.Format(time.RFC3339Nano),
		}
		if err := r.pub.PublishChange(ctx, domain.TableChatMessages, change); err != nil {
			logger.Log.Warn("message change publish failed", zap.String("room", room), zap.Error(err))
		}
	}

	return &domain.ChatMessage{
		ID:          row.ID,
		RoomName:    row.RoomName,
		Content:     row.Content,
		DisplayName: row.DisplayName,
		UserID:      row.UserID,
		CreatedAt:   row.CreatedAt,
		Reactions:   domain.ReactionSummary{},
	}, nil
}

func (r *messageRepository) LoadMessagesPage(ctx context.Context, room, userID string, before *time.Time) ([]domain.ChatMessage, error) {
	q := r.db.WithContext(ctx).
		Where("room_name = ?", room).
		Order("created_at DESC").
		Limit(domain.MessagesPerPage)
	if before != nil {
		q = q.Where("created_at < ?", *before)
	}

	var rows []messageRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: load messages: %v", domain.ErrPersistence, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	counts, reacted, err := r.reactionStats(ctx, ids, userID)
	if err != nil {
		return nil, err
	}

	messages := make([]domain.ChatMessage, len(rows))
	for i, row := range rows {
		messages[i] = domain.ChatMessage{
			ID:          row.ID,
			RoomName:    row.RoomName,
			Content:     row.Content,
			DisplayName: row.DisplayName,
			UserID:      row.UserID,
			CreatedAt:   row.CreatedAt,
			Reactions: domain.ReactionSummary{
				Count:      counts[row.ID],
				HasReacted: reacted[row.ID],
			},
		}
	}
	return messages, nil
}

// reactionStats resolves counts and the viewer's own reactions for a page
// of message ids in two grouped queries.
func (r *messageRepository) reactionStats(ctx context.Context, ids []string, userID string) (map[string]int, map[string]bool, error) {
	type countRow struct {
		MessageID string
		Total     int
	}
	var countRows []countRow
	err := r.db.WithContext(ctx).
		Model(&reactionRow{}).
		Select("message_id, count(*) as total").
		Where("message_id IN ? AND reaction = ?", ids, domain.ReactionKind).
		Group("message_id").
		Scan(&countRows).Error
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reaction counts: %v", domain.ErrPersistence, err)
	}

	counts := make(map[string]int, len(countRows))
	for _, c := range countRows {
		counts[c.MessageID] = c.Total
	}

	reacted := make(map[string]bool)
	if userID != "" {
		var mine []reactionRow
		err = r.db.WithContext(ctx).
			Where("message_id IN ? AND user_id = ? AND reaction = ?", ids, userID, domain.ReactionKind).
			Find(&mine).Error
		if err != nil {
			return nil, nil, fmt.Errorf("%w: own reactions: %v", domain.ErrPersistence, err)
		}
		for _, m := range mine {
			reacted[m.MessageID] = true
		}
	}
	return counts, reacted, nil
}

func (r *messageRepository) ToggleReaction(ctx context.Context, messageID, userID string) (bool, error) {
	if userID == "" {
		return false, domain.ErrAuth
	}

	var existing reactionRow
	err := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND reaction = ?", messageID, userID, domain.ReactionKind).
		First(&existing).Error

	added := false
	switch {
	case err == nil:
		if err := r.db.WithContext(ctx).Delete(&reactionRow{}, existing.ID).Error; err != nil {
			return false, fmt.Errorf("%w: remove reaction: %v", domain.ErrPersistence, err)
		}

	case errors.Is(err, gorm.ErrRecordNotFound):
		row := reactionRow{MessageID: messageID, UserID: userID, Reaction: domain.ReactionKind}
		if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
			return false, fmt.Errorf("%w: add reaction: %v", domain.ErrPersistence, err)
		}
		added = true

	default:
		return false, fmt.Errorf("%w: find reaction: %v", domain.ErrPersistence, err)
	}

	if r.pub != nil {
		change := domain.ReactionChange{
			MessageID: messageID,
			UserID:    userID,
			Reaction:  domain.ReactionKind,
			Removed:   !added,
		}
		if err := r.pub.PublishChange(ctx, domain.TableChatReactions, change); err != nil {
			logger.Log.Warn("reaction change publish failed", zap.String("message", messageID), zap.Error(err))
		}
	}
	return added, nil
}

func (r *messageRepository) ReactionSummary(ctx context.Context, messageID, userID string) (domain.ReactionSummary, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&reactionRow{}).
		Where("message_id = ? AND reaction = ?", messageID, domain.ReactionKind).
		Count(&count).Error
	if err != nil {
		return domain.ReactionSummary{}, fmt.Errorf("%w: reaction summary: %v", domain.ErrPersistence, err)
	}

	hasReacted := false
	if userID != "" {
		var mine int64
		err = r.db.WithContext(ctx).
			Model(&reactionRow{}).
			Where("message_id = ? AND user_id = ? AND reaction = ?", messageID, userID, domain.ReactionKind).
			Count(&mine).Error
		if err != nil {
			return domain.ReactionSummary{}, fmt.Errorf("%w: reaction summary: %v", domain.ErrPersistence, err)
		}
		hasReacted = mine > 0
	}

	return domain.ReactionSummary{Count: int(count), HasReacted: hasReacted}, nil
}
