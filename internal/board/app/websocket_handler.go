package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"collab_board_service/internal/board/canvas"
	"collab_board_service/internal/board/channel"
	"collab_board_service/internal/board/domain"
	"collab_board_service/internal/board/repository"
	"collab_board_service/pkg"
	"collab_board_service/pkg/logger"
	"collab_board_service/pkg/middlewares"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// default surface dimensions until the client reports its viewport
const (
	defaultSurfaceWidth  = 1280.0
	defaultSurfaceHeight = 720.0
)

var knownTools = []string{
	string(domain.ToolBrush),
	string(domain.ToolEraser),
	string(domain.ToolSpray),
	string(domain.ToolText),
}

var cursorPalette = []string{
	"#e57373", "#64b5f6", "#81c784", "#ffb74d", "#ba68c8", "#4db6ac",
}

// sessionColor assigns a stable cursor color to a session key.
func sessionColor(sessionKey string) string {
	sum := 0
	for i := 0; i < len(sessionKey); i++ {
		sum += int(sessionKey[i])
	}
	return cursorPalette[sum%len(cursorPalette)]
}

// BoardWebsocketHandler is the websocket entry point of the board service.
// Each connection gets its own session key, room channels and engines.
type BoardWebsocketHandler struct {
	rdb        *redis.Client
	strokeRepo repository.StrokeRepository
	msgRepo    repository.MessageRepository
}

// NewBoardWebsocketHandler create BoardWebsocketHandler
func NewBoardWebsocketHandler(
	rdb *redis.Client,
	strokeRepo repository.StrokeRepository,
	msgRepo repository.MessageRepository,
) *BoardWebsocketHandler {
	return &BoardWebsocketHandler{
		rdb:        rdb,
		strokeRepo: strokeRepo,
		msgRepo:    msgRepo,
	}
}

// boardSession is the per-connection state: one session key, one channel per
// stream family and the engines bound to them.
type boardSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	sessionKey string
	room       string
	userID     string

	drawCh channel.RoomChannel
	chatCh channel.RoomChannel

	drawing *DrawingEngine
	chat    *ChatEngine
	cursors *CursorTracker
}

// send writes one frame. Pushes arrive from the channel dispatch goroutine
// while the read loop answers requests, so writes are serialized.
func (s *boardSession) send(resp domain.WSResponse) {
	b, _ := json.Marshal(resp)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		logger.Log.Errorf("write message error:", err)
	}
}

func (s *boardSession) push(action string, payload map[string]interface{}) {
	s.send(domain.WSResponse{Action: action, Success: true, Payload: payload})
}

// HandleConnection is the websocket connection entry point.
func (h *BoardWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	userID, _ := conn.Locals(middlewares.TokenUserID).(string)
	displayName, _ := conn.Locals(middlewares.TokenDisplayName).(string)
	room, _ := conn.Locals("room").(string)
	sessionKey := uuid.New().String()
	logger.Log.Info("websocket session open",
		zap.String("room", room), zap.String("userID", userID), zap.String("session", sessionKey))

	s := &boardSession{
		conn:       conn,
		sessionKey: sessionKey,
		room:       room,
		userID:     userID,
		drawCh:     channel.NewRoomChannel(h.rdb, "drawing:"+room, sessionKey),
		chatCh:     channel.NewRoomChannel(h.rdb, "chat:"+room, sessionKey),
	}
	surface := canvas.NewSurface(defaultSurfaceWidth, defaultSurfaceHeight, 1)
	s.drawing = NewDrawingEngine(room, h.strokeRepo, s.drawCh, surface)
	s.chat = NewChatEngine(room, userID, displayName, h.msgRepo, s.chatCh)
	s.cursors = NewCursorTracker(s.drawCh, displayName, sessionColor(sessionKey))

	h.registerPushHandlers(s)

	ticker := time.NewTicker(10 * time.Minute)
	ctxClose, cancel := context.WithCancel(context.Background())

	defer func() {
		ticker.Stop()
		logger.Log.Info("websocket session close",
			zap.String("room", room), zap.String("session", sessionKey))
		if err := s.drawCh.Unsubscribe(context.Background()); err != nil {
			logger.Log.Warn("drawing channel teardown failed", zap.Error(err))
		}
		if err := s.chatCh.Unsubscribe(context.Background()); err != nil {
			logger.Log.Warn("chat channel teardown failed", zap.Error(err))
		}
		conn.Close()
		cancel()
	}()

	conn.SetCloseHandler(func(code int, text string) error {
		logger.Log.Infof("WebSocket closed:", conn.RemoteAddr())
		return nil
	})
	conn.SetPongHandler(func(appData string) error {
		return nil
	})
	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(appData),
			time.Now().Add(time.Second),
		)
	})

	if err := h.openSession(ctx, s); err != nil {
		logger.Log.Error("session open failed",
			zap.String("room", room), zap.String("session", sessionKey), zap.Error(err))
		s.send(domain.WSResponse{Action: "open", Success: false, Payload: map[string]interface{}{}, Error: err.Error()})
		return
	}

	// keepalive ping
	go func() {
		for {
			select {
			case <-ticker.C:
				s.writeMu.Lock()
				err := conn.WriteMessage(websocket.PingMessage, []byte("ping"))
				s.writeMu.Unlock()
				if err != nil {
					logger.Log.Errorf("Ping error:", err)
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Infof("Connection closed:", err)
			} else {
				logger.Log.Errorf("websocket read error:", err)
			}
			return
		}
		h.execWebsocketAction(ctx, s, mt, message)
	}
}

// openSession subscribes both room channels and replays persisted history
// into the engines. Remote frames racing the hydration are dropped by the
// engines until their history load lands.
func (h *BoardWebsocketHandler) openSession(ctx context.Context, s *boardSession) error {
	if _, err := s.drawCh.Subscribe(ctx); err != nil {
		return err
	}
	if _, err := s.chatCh.Subscribe(ctx); err != nil {
		return err
	}
	// the session is visible to peers before the pointer ever moves
	if err := s.cursors.Announce(ctx); err != nil {
		return err
	}
	if err := s.drawing.Hydrate(ctx); err != nil {
		return err
	}
	if err := s.chat.Hydrate(ctx); err != nil {
		return err
	}

	s.send(domain.WSResponse{
		Action:  "open",
		Success: true,
		Payload: map[string]interface{}{
			"session_key":       s.sessionKey,
			"room":              s.room,
			"strokes":           s.drawing.Strokes(),
			"messages":          s.chat.Messages(),
			"has_more_messages": s.chat.HasMoreMessages(),
			"cursors":           s.cursors.Cursors(),
		},
	})
	return nil
}

// registerPushHandlers forwards remote frames to the client. Registration
// happens before Subscribe so no frame is missed.
func (h *BoardWebsocketHandler) registerPushHandlers(s *boardSession) {
	forward := func(sender, event string, payload json.RawMessage) {
		if sender == s.sessionKey {
			return
		}
		ev, err := domain.ParseDrawEvent(event, payload)
		if err != nil {
			return
		}
		switch ev.Kind {
		case domain.DrawEventDraw:
			s.push(domain.PushDraw, map[string]interface{}{"points": ev.Stroke.Points})
		case domain.DrawEventClear:
			s.push(domain.PushClear, map[string]interface{}{"cleared_by": ev.ClearedBy})
		}
	}
	s.drawCh.OnBroadcast(domain.EventDraw, forward)
	s.drawCh.OnBroadcast(domain.EventClear, forward)

	s.drawCh.OnPresenceJoin(func(key string, state json.RawMessage) {
		if key == s.sessionKey {
			return
		}
		var c domain.Cursor
		if err := json.Unmarshal(state, &c); err != nil {
			return
		}
		s.push(domain.PushCursor, map[string]interface{}{"session": key, "cursor": c})
	})
	s.drawCh.OnPresenceLeave(func(key string) {
		if key == s.sessionKey {
			return
		}
		s.push(domain.PushCursorLeave, map[string]interface{}{"session": key})
	})

	s.chatCh.OnTableChange(domain.TableChatMessages, nil, func(row json.RawMessage) {
		var change domain.MessageChange
		if err := json.Unmarshal(row, &change); err != nil || change.RoomName != s.room {
			return
		}
		if change.UserID == s.userID {
			// the send_message response already carried it
			return
		}
		s.push(domain.PushMessage, map[string]interface{}{"message": change})
	})
}

func (h *BoardWebsocketHandler) execWebsocketAction(ctx context.Context, s *boardSession, mt int, msg []byte) {
	switch mt {
	case websocket.TextMessage:
		h.textMessageAction(ctx, s, msg)
	default:
		h.sendError(s, "unknown action")
	}
}

func (h *BoardWebsocketHandler) textMessageAction(ctx context.Context, s *boardSession, msg []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		logger.Log.Errorf("json unmarshal error:", err)
		return
	}

	resp := domain.WSResponse{Action: req.Action, Success: false, Payload: map[string]interface{}{}}
	point := domain.DrawPoint{
		X:         req.X,
		Y:         req.Y,
		Color:     req.Color,
		Size:      req.Size,
		Opacity:   req.Opacity,
		Tool:      domain.Tool(req.Tool),
		Timestamp: req.Timestamp,
	}

	switch domain.WSAction(req.Action) {
	case domain.DrawStart:
		if !pkg.Contains(knownTools, req.Tool) {
			resp.Error = "unknown tool " + req.Tool
			break
		}
		if err := s.drawing.StartStroke(point); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
		}

	case domain.DrawMove:
		if err := s.drawing.MovePointer(point); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
		}
		// move frames are too frequent to answer individually
		if resp.Success {
			return
		}

	case domain.DrawEnd:
		if err := s.drawing.EndStroke(ctx); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
		}

	case domain.DrawText:
		if err := s.drawing.DrawText(req.Text, req.X, req.Y, req.Color, req.Opacity); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
		}

	case domain.ClearBoard:
		if err := s.drawing.Clear(ctx); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
		}

	case domain.ResizeBoard:
		scale := req.Scale
		if scale <= 0 {
			scale = 1
		}
		s.drawing.Resize(req.Width, req.Height, scale)
		resp.Success = true

	case domain.CursorMove:
		if err := s.cursors.UpdateCursor(ctx, req.X, req.Y); err != nil {
			resp.Error = err.Error()
		}
		// throttled, not answered
		if resp.Error == "" {
			return
		}

	case domain.GetCursors:
		resp.Success = true
		resp.Payload["cursors"] = s.cursors.Cursors()

	case domain.GetStrokes:
		resp.Success = true
		resp.Payload["strokes"] = s.drawing.Strokes()

	case domain.SendMessage:
		m, err := s.chat.SendMessage(ctx, req.Content)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["message"] = m
		}

	case domain.FetchMessages:
		if err := s.chat.FetchMessages(ctx); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["messages"] = s.chat.Messages()
			resp.Payload["has_more_messages"] = s.chat.HasMoreMessages()
		}

	case domain.GetMessages:
		resp.Success = true
		resp.Payload["messages"] = s.chat.Messages()
		resp.Payload["has_more_messages"] = s.chat.HasMoreMessages()

	case domain.ToggleReaction:
		if err := s.chat.ToggleReaction(ctx, req.MessageID); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
		}

	case domain.SetPinned:
		s.chat.SetPinnedToBottom(req.Pinned)
		resp.Success = true

	default:
		h.sendError(s, "unknown message types")
		return
	}

	if resp.Error != "" {
		logger.Log.Error("websocket err",
			zap.String("session", s.sessionKey), zap.String("Action", req.Action), zap.String("err", resp.Error))
	}
	s.send(resp)
}

func (h *BoardWebsocketHandler) sendError(s *boardSession, errorMsg string) {
	s.send(domain.WSResponse{
		Action:  "error",
		Success: false,
		Payload: map[string]interface{}{
			"error": errorMsg,
		},
	})
}
