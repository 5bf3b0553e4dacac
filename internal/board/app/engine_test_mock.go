package app

import (
	"context"
	"encoding/json"
	"time"

	"collab_board_service/internal/board/channel"
	"collab_board_service/internal/board/domain"

	"github.com/stretchr/testify/mock"
)

// MockStrokeRepository Mock StrokeRepository
type MockStrokeRepository struct {
	mock.Mock
}

// AppendStroke mock append stroke
func (m *MockStrokeRepository) AppendStroke(ctx context.Context, room string, stroke domain.Stroke, authorID string) error {
	args := m.Called(ctx, room, stroke, authorID)
	return args.Error(0)
}

// LoadStrokes mock load strokes
func (m *MockStrokeRepository) LoadStrokes(ctx context.Context, room string) ([]domain.Stroke, error) {
	args := m.Called(ctx, room)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Stroke), args.Error(1)
	}
	return nil, args.Error(1)
}

// ClearRoom mock clear room
func (m *MockStrokeRepository) ClearRoom(ctx context.Context, room string) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// AppendMessage mock append message
func (m *MockMessageRepository) AppendMessage(ctx context.Context, room, content, authorID, displayName string) (*domain.ChatMessage, error) {
	args := m.Called(ctx, room, content, authorID, displayName)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.ChatMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

// LoadMessagesPage mock load page
func (m *MockMessageRepository) LoadMessagesPage(ctx context.Context, room, userID string, before *time.Time) ([]domain.ChatMessage, error) {
	args := m.Called(ctx, room, userID, before)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.ChatMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

// ToggleReaction mock toggle reaction
func (m *MockMessageRepository) ToggleReaction(ctx context.Context, messageID, userID string) (bool, error) {
	args := m.Called(ctx, messageID, userID)
	return args.Bool(0), args.Error(1)
}

// ReactionSummary mock reaction summary
func (m *MockMessageRepository) ReactionSummary(ctx context.Context, messageID, userID string) (domain.ReactionSummary, error) {
	args := m.Called(ctx, messageID, userID)
	return args.Get(0).(domain.ReactionSummary), args.Error(1)
}

// fakeRoomChannel is an in-memory RoomChannel. Handlers fire synchronously
// through the deliver helpers so tests control frame order.
type fakeRoomChannel struct {
	sessionKey string
	subscribed bool

	broadcasts []fakeBroadcast
	tracked    []json.RawMessage

	broadcastHandlers map[string][]channel.BroadcastHandler
	syncHandlers      []channel.PresenceSyncHandler
	joinHandlers      []channel.PresenceJoinHandler
	leaveHandlers     []channel.PresenceLeaveHandler
	changeHandlers    map[string][]fakeChangeSub
}

type fakeBroadcast struct {
	event   string
	payload json.RawMessage
}

type fakeChangeSub struct {
	filter  func(row json.RawMessage) bool
	handler channel.ChangeHandler
}

func newFakeRoomChannel(sessionKey string) *fakeRoomChannel {
	return &fakeRoomChannel{
		sessionKey:        sessionKey,
		subscribed:        true,
		broadcastHandlers: make(map[string][]channel.BroadcastHandler),
		changeHandlers:    make(map[string][]fakeChangeSub),
	}
}

func (f *fakeRoomChannel) Subscribe(ctx context.Context) (channel.Status, error) {
	f.subscribed = true
	return channel.StatusSubscribed, nil
}

func (f *fakeRoomChannel) Unsubscribe(ctx context.Context) error {
	f.subscribed = false
	return nil
}

func (f *fakeRoomChannel) Broadcast(ctx context.Context, event string, payload any) error {
	if !f.subscribed {
		return domain.ErrNotConnected
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.broadcasts = append(f.broadcasts, fakeBroadcast{event: event, payload: raw})
	return nil
}

func (f *fakeRoomChannel) Track(ctx context.Context, state any) error {
	if !f.subscribed {
		return domain.ErrNotConnected
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	f.tracked = append(f.tracked, raw)
	return nil
}

func (f *fakeRoomChannel) Subscribed() bool   { return f.subscribed }
func (f *fakeRoomChannel) SessionKey() string { return f.sessionKey }

func (f *fakeRoomChannel) OnBroadcast(event string, h channel.BroadcastHandler) {
	f.broadcastHandlers[event] = append(f.broadcastHandlers[event], h)
}

func (f *fakeRoomChannel) OnPresenceSync(h channel.PresenceSyncHandler) {
	f.syncHandlers = append(f.syncHandlers, h)
}

func (f *fakeRoomChannel) OnPresenceJoin(h channel.PresenceJoinHandler) {
	f.joinHandlers = append(f.joinHandlers, h)
}

func (f *fakeRoomChannel) OnPresenceLeave(h channel.PresenceLeaveHandler) {
	f.leaveHandlers = append(f.leaveHandlers, h)
}

func (f *fakeRoomChannel) OnTableChange(table string, filter func(row json.RawMessage) bool, h channel.ChangeHandler) {
	f.changeHandlers[table] = append(f.changeHandlers[table], fakeChangeSub{filter: filter, handler: h})
}

func (f *fakeRoomChannel) deliverBroadcast(sender, event string, payload any) {
	raw, _ := json.Marshal(payload)
	for _, h := range f.broadcastHandlers[event] {
		h(sender, event, raw)
	}
}

func (f *fakeRoomChannel) deliverSync(states map[string]any) {
	snapshot := make(map[string]json.RawMessage, len(states))
	for k, v := range states {
		raw, _ := json.Marshal(v)
		snapshot[k] = raw
	}
	for _, h := range f.syncHandlers {
		h(snapshot)
	}
}

func (f *fakeRoomChannel) deliverJoin(key string, state any) {
	raw, _ := json.Marshal(state)
	for _, h := range f.joinHandlers {
		h(key, raw)
	}
}

func (f *fakeRoomChannel) deliverLeave(key string) {
	for _, h := range f.leaveHandlers {
		h(key)
	}
}

func (f *fakeRoomChannel) deliverChange(table string, row any) {
	raw, _ := json.Marshal(row)
	for _, sub := range f.changeHandlers[table] {
		if sub.filter != nil && !sub.filter(raw) {
			continue
		}
		sub.handler(raw)
	}
}
