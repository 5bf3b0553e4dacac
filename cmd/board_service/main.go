package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"collab_board_service/internal/board/app"
	"collab_board_service/internal/board/channel"
	"collab_board_service/internal/board/repository"
	"collab_board_service/internal/board/router"
	"collab_board_service/pkg/config"
	"collab_board_service/pkg/database"
	"collab_board_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.BoardService, config.EnvConfig.BoardServiceLogPath)
	cfg := config.LoadConfig[config.Board](config.EnvConfig.BoardService, config.EnvConfig.BoardServiceYAMLPath)

	// postgres holds the stroke and chat history
	pg := cfg.PostgreSQL
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		pg.User, pg.Password, pg.Host, pg.Port, pg.Database)
	conn := database.Connection{
		ConnectStr:    connStr,
		RetryCount:    pg.RetryCount,
		RetryInterval: time.Duration(pg.RetryInterval),
	}

	pool, err := database.NewDatabaseConnection(conn)
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to postgreSQL database after retries",
			zap.String("address", fmt.Sprintf("[%s]", connStr)),
			zap.Error(err),
		)
	}
	defer pool.Close()

	db, err := database.NewGormConnection(conn)
	if err != nil {
		logger.Log.Fatal("Unable to open gorm connection", zap.Error(err))
	}
	if err := repository.Migrate(db); err != nil {
		logger.Log.Fatal("Unable to migrate board tables", zap.Error(err))
	}

	// redis carries broadcast, presence and the change feed
	redisClient, err := database.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.RedisDB)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}

	pub := channel.NewPublisher(redisClient)
	strokeRepo := repository.NewStrokeRepository(db, pub)
	msgRepo := repository.NewMessageRepository(db, pub)

	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.BoardServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	router.RegisterRoutes(r, app.NewBoardWebsocketHandler(redisClient, strokeRepo, msgRepo), cfg.DefaultRoom)

	port := ":" + cfg.Port
	log.Printf("Board Service listening on %s", port)
	if err := r.Listen(port); err != nil {
		log.Fatalf("Failed to start Fiber: %v", err)
	}
}
