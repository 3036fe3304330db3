package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/strwt/UniclaimRepo-sub001/internal/api"
	"github.com/strwt/UniclaimRepo-sub001/internal/auditor"
	"github.com/strwt/UniclaimRepo-sub001/internal/auth"
	"github.com/strwt/UniclaimRepo-sub001/internal/cache"
	"github.com/strwt/UniclaimRepo-sub001/internal/clients"
	"github.com/strwt/UniclaimRepo-sub001/internal/config"
	"github.com/strwt/UniclaimRepo-sub001/internal/events"
	"github.com/strwt/UniclaimRepo-sub001/internal/logger"
	"github.com/strwt/UniclaimRepo-sub001/internal/repository"
	"github.com/strwt/UniclaimRepo-sub001/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zl, err := logger.New(logger.Config{Development: cfg.App.Env != "production"})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	mc, err := repository.NewMongoClient(cfg.Mongo.URI)
	if err != nil {
		zl.Fatalw("mongo init", "err", err)
	}
	defer func() { _ = mc.Disconnect(context.Background()) }()
	db := mc.Database(cfg.Mongo.DB)

	rdb, err := cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		zl.Fatalw("redis init", "err", err)
	}
	defer rdb.Close()

	producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()

	postsClient := clients.NewPostClient(cfg.Services.PostsURL, 5*time.Second)
	usersClient := clients.NewUserClient(cfg.Services.UsersURL, 5*time.Second)

	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)

	convSvc := service.NewConversationService(convRepo, msgRepo, postsClient, usersClient, producer, zl)
	msgSvc := service.NewMessageService(convRepo, msgRepo, producer, zl)
	reqSvc := service.NewRequestService(convRepo, msgRepo, msgSvc, postsClient, producer, zl)

	aud := auditor.New(convRepo, msgRepo, postsClient, rdb, cfg.Auditor.CleanupPerSecond, zl)

	jv, err := auth.NewJWTValidator(cfg.JWT.Secret)
	if err != nil {
		zl.Fatalw("jwt init", "err", err)
	}

	app := api.NewServer(api.Deps{
		Conversations: convSvc,
		Messages:      msgSvc,
		Requests:      reqSvc,
		Auditor:       aud,
		Cache:         rdb,
		JWT:           jv,
		SendRate:      cfg.App.SendRatePerMin,
		Log:           zl,
	})

	go func() {
		if err := app.Listen(":" + cfg.App.PortString()); err != nil {
			zl.Fatalw("server listen", "err", err)
		}
	}()
	zl.Infow("messaging-service started", "port", cfg.App.PortString())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = app.ShutdownWithContext(ctx)
	zl.Infow("messaging-service stopped")
}
