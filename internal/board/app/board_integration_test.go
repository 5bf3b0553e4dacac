package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"collab_board_service/internal/board/channel"
	"collab_board_service/internal/board/domain"
	"collab_board_service/internal/board/repository"
	"collab_board_service/pkg/database"
	"collab_board_service/pkg/logger"
	"collab_board_service/pkg/middlewares"
	testtool "collab_board_service/pkg/test_tool"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var pgContainer testcontainers.Container
var redisContainer testcontainers.Container
var boardApp *fiber.App
var boardHandler *BoardWebsocketHandler

func TestMain(m *testing.M) {
	ctx := context.Background()
	logger.SetNewNop()

	pgContainer, pgHost, pgPort, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "board",
			"POSTGRES_PASSWORD": "board",
			"POSTGRES_DB":       "board_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	})
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	fmt.Printf("PostgreSQL running at %s:%s\n", pgHost, pgPort)

	redisContainer, redisHost, redisPort, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "redis:latest",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
	})
	if err != nil {
		log.Fatalf("Failed to start Redis container: %v", err)
	}
	fmt.Printf("Redis running at %s:%s\n", redisHost, redisPort)

	connStr := fmt.Sprintf("postgres://board:board@%s:%s/board_test", pgHost, pgPort)
	db, err := database.NewGormConnection(database.Connection{
		ConnectStr:    connStr,
		RetryCount:    5,
		RetryInterval: 2,
	})
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate board tables: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort),
		DB:   0,
	})

	pub := channel.NewPublisher(redisClient)
	strokeRepo := repository.NewStrokeRepository(db, pub)
	msgRepo := repository.NewMessageRepository(db, pub)
	boardHandler = NewBoardWebsocketHandler(redisClient, strokeRepo, msgRepo)

	boardApp = fiber.New()
	boardApp.Use("/ws", func(c *fiber.Ctx) error {
		c.Locals("room", c.Query("room"))
		c.Locals(middlewares.TokenUserID, c.Query("user"))
		c.Locals(middlewares.TokenDisplayName, c.Query("name"))
		return c.Next()
	})
	boardApp.Get("/ws", websocket.New(func(c *websocket.Conn) {
		boardHandler.HandleConnection(context.Background(), c)
	}))

	go func() {
		if err := boardApp.Listen(":8082"); err != nil {
			log.Fatalf("Failed to start WebSocket server: %v", err)
		}
	}()
	time.Sleep(5 * time.Second)

	code := m.Run()

	_ = pgContainer.Terminate(ctx)
	_ = redisContainer.Terminate(ctx)
	boardApp.Shutdown()

	os.Exit(code)
}

func dialBoard(t *testing.T, room, user, name string) *gws.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://127.0.0.1:8082/ws?room=%s&user=%s&name=%s", room, user, name)
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	assert.NoError(t, err, "websocket dial failed")
	return conn
}

// awaitAction reads frames until one with the wanted action arrives.
func awaitAction(t *testing.T, conn *gws.Conn, action string) domain.WSResponse {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("reading for %q: %v", action, err)
		}
		var resp domain.WSResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			t.Fatalf("bad frame for %q: %v", action, err)
		}
		if resp.Action == action {
			return resp
		}
	}
}

func sendReq(t *testing.T, conn *gws.Conn, req map[string]interface{}) {
	t.Helper()
	raw, _ := json.Marshal(req)
	assert.NoError(t, conn.WriteMessage(gws.TextMessage, raw))
}

func TestWebSocketOpen(t *testing.T) {
	room := "room-" + uuid.New().String()
	conn := dialBoard(t, room, "user-a", "alice")
	defer conn.Close()

	open := awaitAction(t, conn, "open")
	assert.True(t, open.Success)
	assert.NotEmpty(t, open.Payload["session_key"])
	assert.Equal(t, room, open.Payload["room"])
}

func TestStrokeReachesPeer(t *testing.T) {
	room := "room-" + uuid.New().String()
	connA := dialBoard(t, room, "user-a", "alice")
	defer connA.Close()
	connB := dialBoard(t, room, "user-b", "bob")
	defer connB.Close()
	awaitAction(t, connA, "open")
	awaitAction(t, connB, "open")

	sendReq(t, connA, map[string]interface{}{
		"action": "draw_start", "x": 10.0, "y": 10.0,
		"color": "#000000", "size": 4.0, "opacity": 1.0, "tool": "brush",
	})
	awaitAction(t, connA, "draw_start")
	sendReq(t, connA, map[string]interface{}{
		"action": "draw_move", "x": 40.0, "y": 10.0,
		"color": "#000000", "size": 4.0, "opacity": 1.0, "tool": "brush",
	})
	sendReq(t, connA, map[string]interface{}{"action": "draw_end"})
	awaitAction(t, connA, "draw_end")

	push := awaitAction(t, connB, domain.PushDraw)
	points, ok := push.Payload["points"].([]interface{})
	assert.True(t, ok)
	assert.Len(t, points, 2)
}

func TestStrokeSurvivesReconnect(t *testing.T) {
	room := "room-" + uuid.New().String()
	connA := dialBoard(t, room, "user-a", "alice")
	awaitAction(t, connA, "open")

	sendReq(t, connA, map[string]interface{}{
		"action": "draw_start", "x": 10.0, "y": 10.0,
		"color": "#112233", "size": 4.0, "opacity": 1.0, "tool": "brush",
	})
	awaitAction(t, connA, "draw_start")
	sendReq(t, connA, map[string]interface{}{
		"action": "draw_move", "x": 40.0, "y": 10.0,
		"color": "#112233", "size": 4.0, "opacity": 1.0, "tool": "brush",
	})
	sendReq(t, connA, map[string]interface{}{"action": "draw_end"})
	resp := awaitAction(t, connA, "draw_end")
	assert.True(t, resp.Success)
	connA.Close()

	connB := dialBoard(t, room, "user-b", "bob")
	defer connB.Close()
	open := awaitAction(t, connB, "open")
	strokes, ok := open.Payload["strokes"].([]interface{})
	assert.True(t, ok)
	assert.Len(t, strokes, 1)
}

func TestClearReachesPeerAndHistory(t *testing.T) {
	room := "room-" + uuid.New().String()
	connA := dialBoard(t, room, "user-a", "alice")
	defer connA.Close()
	connB := dialBoard(t, room, "user-b", "bob")
	defer connB.Close()
	awaitAction(t, connA, "open")
	awaitAction(t, connB, "open")

	sendReq(t, connA, map[string]interface{}{
		"action": "draw_start", "x": 10.0, "y": 10.0,
		"color": "#000000", "size": 4.0, "opacity": 1.0, "tool": "brush",
	})
	awaitAction(t, connA, "draw_start")
	sendReq(t, connA, map[string]interface{}{
		"action": "draw_move", "x": 40.0, "y": 10.0,
		"color": "#000000", "size": 4.0, "opacity": 1.0, "tool": "brush",
	})
	sendReq(t, connA, map[string]interface{}{"action": "draw_end"})
	awaitAction(t, connA, "draw_end")
	awaitAction(t, connB, domain.PushDraw)

	sendReq(t, connB, map[string]interface{}{"action": "clear_board"})
	resp := awaitAction(t, connB, "clear_board")
	assert.True(t, resp.Success)

	awaitAction(t, connA, domain.PushClear)

	sendReq(t, connA, map[string]interface{}{"action": "get_strokes"})
	strokesResp := awaitAction(t, connA, "get_strokes")
	strokes, _ := strokesResp.Payload["strokes"].([]interface{})
	assert.Empty(t, strokes)
}

func TestChatMessageReachesPeer(t *testing.T) {
	room := "room-" + uuid.New().String()
	connA := dialBoard(t, room, "user-a", "alice")
	defer connA.Close()
	connB := dialBoard(t, room, "user-b", "bob")
	defer connB.Close()
	awaitAction(t, connA, "open")
	awaitAction(t, connB, "open")

	sendReq(t, connA, map[string]interface{}{"action": "send_message", "content": "hello board"})
	resp := awaitAction(t, connA, "send_message")
	assert.True(t, resp.Success)

	push := awaitAction(t, connB, domain.PushMessage)
	msg, ok := push.Payload["message"].(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, "hello board", msg["content"])
	assert.Equal(t, "alice", msg["display_name"])
}

func TestReactionToggle(t *testing.T) {
	room := "room-" + uuid.New().String()
	connA := dialBoard(t, room, "user-a", "alice")
	defer connA.Close()
	awaitAction(t, connA, "open")

	sendReq(t, connA, map[string]interface{}{"action": "send_message", "content": "react to me"})
	resp := awaitAction(t, connA, "send_message")
	msg := resp.Payload["message"].(map[string]interface{})
	msgID := msg["id"].(string)

	sendReq(t, connA, map[string]interface{}{"action": "toggle_reaction", "message_id": msgID})
	assert.True(t, awaitAction(t, connA, "toggle_reaction").Success)

	sendReq(t, connA, map[string]interface{}{"action": "get_messages"})
	got := awaitAction(t, connA, "get_messages")
	msgs := got.Payload["messages"].([]interface{})
	last := msgs[len(msgs)-1].(map[string]interface{})
	reactions := last["reactions"].(map[string]interface{})
	assert.EqualValues(t, 1, reactions["count"])
	assert.Equal(t, true, reactions["has_reacted"])

	// second toggle removes it
	sendReq(t, connA, map[string]interface{}{"action": "toggle_reaction", "message_id": msgID})
	assert.True(t, awaitAction(t, connA, "toggle_reaction").Success)

	sendReq(t, connA, map[string]interface{}{"action": "get_messages"})
	got = awaitAction(t, connA, "get_messages")
	msgs = got.Payload["messages"].([]interface{})
	last = msgs[len(msgs)-1].(map[string]interface{})
	reactions = last["reactions"].(map[string]interface{})
	assert.EqualValues(t, 0, reactions["count"])
	assert.Equal(t, false, reactions["has_reacted"])
}

func TestCursorReachesPeer(t *testing.T) {
	room := "room-" + uuid.New().String()
	connA := dialBoard(t, room, "user-a", "alice")
	defer connA.Close()
	connB := dialBoard(t, room, "user-b", "bob")
	defer connB.Close()
	awaitAction(t, connA, "open")
	awaitAction(t, connB, "open")

	// identity fields in the request must not override the session's own
	sendReq(t, connA, map[string]interface{}{
		"action": "cursor_move", "x": 42.0, "y": 24.0, "text": "mallory", "color": "#ff0000",
	})

	push := awaitAction(t, connB, domain.PushCursor)
	cursor, ok := push.Payload["cursor"].(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, 42.0, cursor["x"])
	assert.Equal(t, "alice", cursor["name"])
	assert.NotEmpty(t, cursor["color"])
	assert.NotEqual(t, "#ff0000", cursor["color"])
}

func TestJoinerVisibleBeforeMoving(t *testing.T) {
	room := "room-" + uuid.New().String()
	connA := dialBoard(t, room, "user-a", "alice")
	defer connA.Close()
	awaitAction(t, connA, "open")

	// alice has never moved her pointer, yet a later joiner sees her
	connB := dialBoard(t, room, "user-b", "bob")
	defer connB.Close()
	open := awaitAction(t, connB, "open")

	cursors, ok := open.Payload["cursors"].(map[string]interface{})
	assert.True(t, ok)
	assert.Len(t, cursors, 1)
	for _, raw := range cursors {
		cursor, ok := raw.(map[string]interface{})
		assert.True(t, ok)
		assert.Equal(t, "alice", cursor["name"])
		assert.NotEmpty(t, cursor["color"])
	}
}

func TestEmptyMessageRejected(t *testing.T) {
	room := "room-" + uuid.New().String()
	conn := dialBoard(t, room, "user-a", "alice")
	defer conn.Close()
	awaitAction(t, conn, "open")

	sendReq(t, conn, map[string]interface{}{"action": "send_message", "content": "   "})
	resp := awaitAction(t, conn, "send_message")
	assert.False(t, resp.Success)

	sendReq(t, conn, map[string]interface{}{"action": "get_messages"})
	state := awaitAction(t, conn, "get_messages")
	assert.Empty(t, state.Payload["messages"])
}

func TestUnknownActionRejected(t *testing.T) {
	room := "room-" + uuid.New().String()
	conn := dialBoard(t, room, "user-a", "alice")
	defer conn.Close()
	awaitAction(t, conn, "open")

	sendReq(t, conn, map[string]interface{}{"action": "teleport"})
	resp := awaitAction(t, conn, "error")
	assert.False(t, resp.Success)
}
