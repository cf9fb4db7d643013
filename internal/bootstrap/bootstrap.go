package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm"

	"github.com/FJFJ0400/capture-ai/internal/capture"
	"github.com/FJFJ0400/capture-ai/internal/cfg"
	"github.com/FJFJ0400/capture-ai/internal/database"
	"github.com/FJFJ0400/capture-ai/internal/deadletter"
	"github.com/FJFJ0400/capture-ai/internal/purpose"
	"github.com/FJFJ0400/capture-ai/internal/queue"
	"github.com/FJFJ0400/capture-ai/internal/todo"
)

const connectTimeout = 5 * time.Second

// OpenDatabase подключает Postgres и накатывает схему.
func OpenDatabase(conf cfg.Config, logger zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Open(conf.PostgresDSN(), database.DefaultPool, logger)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db, &purpose.Purpose{}, &capture.Capture{}, &todo.Todo{}); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	return db, nil
}

// OpenRedis создаёт клиент и проверяет соединение.
func OpenRedis(ctx context.Context, conf cfg.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.RedisAddr,
		Password: conf.RedisPassword,
		DB:       conf.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", conf.RedisAddr, err)
	}
	return client, nil
}

func NewQueue(client redis.UniversalClient, conf cfg.Config) queue.Queue {
	return queue.NewRedisQueue(client, queue.Options{
		Name:        conf.QueueName,
		MaxAttempts: conf.QueueAttempts,
		Backoff:     conf.QueueBackoff,
		Retention:   conf.QueueRetention,
		Lease:       conf.QueueLease,
	})
}

// OpenJournal подключает журнал окончательных ошибок.
// Без MONGO_URI журнал ничего не пишет.
func OpenJournal(ctx context.Context, conf cfg.Config, logger zerolog.Logger) (deadletter.Journal, func(context.Context) error, error) {
	if conf.MongoURI == "" {
		logger.Info().Msg("MONGO_URI is empty, dead letter journal disabled")
		return deadletter.NewNopJournal(), func(context.Context) error { return nil }, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(conf.MongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}

	collection := client.Database(conf.MongoDatabase).Collection(conf.MongoCollection)
	return deadletter.NewMongoJournal(collection), client.Disconnect, nil
}
