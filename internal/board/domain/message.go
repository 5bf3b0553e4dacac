package domain

import "time"

// ReactionKind the fixed like symbol; one reaction per (message, user) pair
const ReactionKind = "❤️"

// ReactionSummary derived reaction state of one message for the viewing user
type ReactionSummary struct {
	Count      int  `json:"count"`
	HasReacted bool `json:"has_reacted"`
}

// ChatMessage one immutable chat entry, ordered by CreatedAt for display
type ChatMessage struct {
	ID          string          `json:"id"`
	RoomName    string          `json:"room_name"`
	Content     string          `json:"content"`
	DisplayName string          `json:"display_name"`
	UserID      string          `json:"user_id"`
	CreatedAt   time.Time       `json:"created_at"`
	Reactions   ReactionSummary `json:"reactions"`
}

// MessagesPerPage fixed chat pagination page size
const MessagesPerPage = 50
