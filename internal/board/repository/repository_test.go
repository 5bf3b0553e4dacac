package repository

import (
	"context"
	"testing"

	"collab_board_service/internal/board/domain"

	"github.com/stretchr/testify/assert"
)

// The repositories validate before touching the database; a nil handle
// proves a rejected write never reaches the store.

func validStroke() domain.Stroke {
	return domain.Stroke{Points: []domain.DrawPoint{
		{X: 1, Y: 1, Color: "#000000", Size: 4, Opacity: 1, Tool: domain.ToolBrush},
		{X: 2, Y: 2, Color: "#000000", Size: 4, Opacity: 1, Tool: domain.ToolBrush},
	}}
}

func TestAppendMessage_RejectsEmptyContent(t *testing.T) {
	repo := NewMessageRepository(nil, nil)

	_, err := repo.AppendMessage(context.Background(), "room-1", "", "user-a", "alice")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = repo.AppendMessage(context.Background(), "room-1", "   \t\n", "user-a", "alice")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAppendMessage_RequiresAuthor(t *testing.T) {
	repo := NewMessageRepository(nil, nil)

	_, err := repo.AppendMessage(context.Background(), "room-1", "hello", "", "ghost")
	assert.ErrorIs(t, err, domain.ErrAuth)
}

func TestToggleReaction_RequiresUser(t *testing.T) {
	repo := NewMessageRepository(nil, nil)

	_, err := repo.ToggleReaction(context.Background(), "msg-1", "")
	assert.ErrorIs(t, err, domain.ErrAuth)
}

func TestAppendStroke_RejectsInvalidStroke(t *testing.T) {
	repo := NewStrokeRepository(nil, nil)

	err := repo.AppendStroke(context.Background(), "room-1", domain.Stroke{}, "user-a")
	assert.ErrorIs(t, err, domain.ErrValidation)

	short := domain.Stroke{Points: validStroke().Points[:1]}
	err = repo.AppendStroke(context.Background(), "room-1", short, "user-a")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAppendStroke_RequiresAuthor(t *testing.T) {
	repo := NewStrokeRepository(nil, nil)

	err := repo.AppendStroke(context.Background(), "room-1", validStroke(), "")
	assert.ErrorIs(t, err, domain.ErrAuth)
}
