package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"bone_chat/internal/config"
	"bone_chat/internal/repository/user"
	"bone_chat/internal/service/auth"
	"bone_chat/internal/service/relay"
	redisSvc "bone_chat/internal/service/redis"
	"bone_chat/internal/utils/log"
)

func main() {
	cfg := config.Load()

	mongoDBClient, err := initMongo(cfg.MongoURI)
	if err != nil {
		log.Fatal("connect to mongo failed", zap.Error(err))
	}

	db := mongoDBClient.Database(cfg.MongoDatabase)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	registry := redisSvc.NewRedis(rdb)

	userRepo := user.NewUserRepo(db)
	authSvc := auth.NewService(userRepo, registry, cfg.JWTSecret, cfg.TokenTTL)
	hub := relay.NewHub(registry, cfg.SessionDuration, cfg.TimerInterval)

	srv := relay.NewHttpServer(cfg.ListenAddr, authSvc, hub)
	go func() {
		if err := srv.Run(); err != nil {
			log.Fatal("relay server stopped", zap.Error(err))
		}
	}()
	log.Info("relay listening", zap.String("addr", cfg.ListenAddr))

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	<-done
}

func initMongo(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return client, client.Ping(ctx, nil)
}
