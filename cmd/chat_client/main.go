package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"group_chat_client/internal/chat/app"
	"group_chat_client/internal/chat/repository"
	"group_chat_client/internal/chat/router"
	"group_chat_client/pkg/config"
	"group_chat_client/pkg/database"
	"group_chat_client/pkg/logger"
	"group_chat_client/pkg/metrics"
	"group_chat_client/pkg/token"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

// backend collaborators of the sync core
type backend struct {
	messages    repository.MessageRepository
	channel     repository.LiveChannel
	groups      repository.GroupRepository
	attachments repository.AttachmentStore
	cleanup     []func()
}

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatClient, config.EnvConfig.ChatClientLogPath)
	defer logger.Log.Sync()

	cfg, err := config.LoadConfig[config.Client](config.EnvConfig.ChatClient, config.EnvConfig.ChatClientYAMLPath)
	if err != nil {
		logger.Log.Fatal("load config", zap.Error(err))
	}
	if config.EnvConfig.ChatClientPort != "" {
		cfg.Port = config.EnvConfig.ChatClientPort
	}

	ctx := context.Background()
	tokens := repository.NewJWTTokenStore()

	var b backend
	switch cfg.Mode {
	case config.ModeRemote:
		b = remoteBackend(ctx, cfg, tokens)
	default:
		b = localBackend(tokens)
	}
	defer func() {
		for _, f := range b.cleanup {
			f()
		}
	}()

	// 初始化 UseCases
	groupUC := app.NewGroupUseCase(b.groups, tokens)
	attachmentUC := app.NewAttachmentUseCase(b.attachments, tokens, cfg.MinIO.PresignExpiry)
	session := app.NewSessionController(b.messages, b.channel, tokens, groupUC, cfg.Sync)
	defer session.Close()

	metricsSrv := metrics.StartServer(cfg.MetricsPort)

	// 啟動 Fiber
	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatClientLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	// 注册路由
	router.RegisterRoutes(r, app.NewChatHandler(session, groupUC, attachmentUC, tokens))

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Log.Info("shutting down")
		session.Close()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(context.Background())
		}
		_ = r.Shutdown()
	}()

	port := ":" + cfg.Port
	logger.Log.Info("Chat Client listening", zap.String("port", port), zap.String("mode", string(cfg.Mode)))
	if err := r.Listen(port); err != nil {
		logger.Log.Fatal("Failed to start Fiber", zap.Error(err))
	}
}

// localBackend in-memory store seeded with the demo group; signs in a demo member
func localBackend(tokens *repository.JWTTokenStore) backend {
	store := repository.NewMemoryStore()
	store.SeedDemo(time.Now(), "demo-user")

	t, err := token.GenerateJWT("demo-user", "Demo User", "chat_client")
	if err != nil {
		logger.Log.Fatal("generate demo token", zap.Error(err))
	}
	if err := tokens.SetToken(t); err != nil {
		logger.Log.Fatal("store demo token", zap.Error(err))
	}
	logger.Log.Info("local mode, signed in as demo-user", zap.String("token", t))

	return backend{messages: store, channel: store, groups: store, attachments: store}
}

// remoteBackend mongo / redis or websocket / postgres / minio
func remoteBackend(ctx context.Context, cfg config.Client, tokens *repository.JWTTokenStore) backend {
	var b backend

	// 建立 Mongo 連線 (存訊息)
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.MongoSQL.User, cfg.MongoSQL.Password, cfg.MongoSQL.Host, cfg.MongoSQL.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    uri,
			RetryCount:    cfg.MongoSQL.RetryCount,
			RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval),
		},
		cfg.MongoSQL.Database)
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to mongoDB database after retries",
			zap.String("address", fmt.Sprintf("[%s:%d]", cfg.MongoSQL.Host, cfg.MongoSQL.Port)),
			zap.Error(err),
		)
	}
	b.cleanup = append(b.cleanup, func() { _ = mongo.Close(context.Background()) })
	if err := repository.EnsureMessageIndexes(ctx, mongo.Database); err != nil {
		logger.Log.Warn("ensure message indexes", zap.Error(err))
	}

	// 建立 Redis 連線 (Pub/Sub)
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = database.NewRedisClientAddr(cfg.Redis.Addr, cfg.Redis.RedisDB)
	} else {
		masterName, sentinel := config.GetRedisSetting()
		redisClient, err = database.NewRedisClient(masterName, sentinel, cfg.Redis.RedisDB)
	}
	if err != nil {
		logger.Log.Fatal("connect redis", zap.Error(err))
	}
	b.cleanup = append(b.cleanup, func() { _ = redisClient.Close() })
	pubsub := repository.NewRedisPubSub(redisClient)

	b.messages = repository.NewMongoMessageRepository(mongo.Database, pubsub)
	switch cfg.Realtime.Kind {
	case config.RealtimeWebsocket:
		b.channel = repository.NewWebsocketChannel(cfg.Realtime.WebsocketURL, tokens, cfg.Realtime.DialTimeout)
	default:
		b.channel = pubsub
	}

	// PostgreSQL (群組)
	db, err := database.NewGormConnection(database.Connection{
		ConnectStr: database.PostgresDSN(cfg.PostgreSQL.Host, cfg.PostgreSQL.Port,
			cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Database),
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("Unable to connect to database after retries", zap.Error(err))
	}
	if err := repository.MigrateGroups(db); err != nil {
		logger.Log.Fatal("migrate groups", zap.Error(err))
	}
	b.groups = repository.NewGormGroupRepository(db)

	// MinIO (附件)
	minioClient, err := database.NewMinIOConnection(database.MinIOConnection{
		Endpoint:      cfg.MinIO.Endpoint,
		User:          cfg.MinIO.User,
		Password:      cfg.MinIO.Password,
		BucketName:    cfg.MinIO.BucketName,
		UseSSL:        cfg.MinIO.UseSSL,
		RetryCount:    cfg.MinIO.RetryCount,
		RetryInterval: time.Duration(cfg.MinIO.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("connect minio", zap.Error(err))
	}
	b.attachments = repository.NewMinIOAttachmentStore(minioClient)

	return b
}
