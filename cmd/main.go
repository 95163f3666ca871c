package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"scholarconnect-ws/internal/auth"
	"scholarconnect-ws/internal/chat"
	"scholarconnect-ws/internal/config"
	"scholarconnect-ws/internal/delivery"
	"scholarconnect-ws/internal/infrastructure/kafka"
	"scholarconnect-ws/internal/infrastructure/redis"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Application recovered from panic: %v", r)
			os.Exit(1)
		}
	}()

	_ = godotenv.Load()

	// Load configuration
	cfg := config.LoadConfig()

	log.Printf("Starting ScholarConnect Messaging Server")
	log.Printf("Environment: %s", cfg.Environment)
	log.Printf("Port: %s", cfg.Port)
	log.Printf("Redis: %s:%s", cfg.RedisHost, cfg.RedisPort)
	log.Printf("Kafka Brokers: %v", cfg.KafkaBrokers)

	// Persistence gateway
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.AutoMigrate(chat.Models()...); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}
	repo := chat.NewRepo(db)

	// Redis mirror for ephemeral state
	redisClient := redis.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
	if err := redisClient.Ping(context.Background()); err != nil {
		log.Printf("Warning: Redis connection failed: %v", err)
	} else {
		log.Println("Redis connection successful")
	}

	// Kafka relay
	kafkaBroker := strings.Join(cfg.KafkaBrokers, ",")
	kafkaProducer := kafka.NewKafkaProducer(kafkaBroker)

	// Core services
	resolver := auth.NewResolver(cfg.JWTSecret, repo)
	roomSvc := chat.NewRooms(repo)
	wsManager := delivery.NewWSManager(resolver, roomSvc)
	dispatcher := chat.NewDispatcher(repo, roomSvc, wsManager, kafkaProducer)
	presence := chat.NewRegistry(repo, redisClient, wsManager, kafkaProducer)
	typing := chat.NewTyping(redisClient, wsManager, kafkaProducer)
	calls := chat.NewCalls(repo, roomSvc, wsManager)
	wsManager.Bind(dispatcher, presence, typing, calls)

	// Consume room events other services originate
	kafkaConsumer := kafka.NewKafkaConsumer(
		cfg.KafkaBrokers,
		"scholarconnect-ws-group",
		[]string{"chat-events"},
		wsManager,
	)

	server := delivery.NewServer(cfg, resolver, redisClient, wsManager, roomSvc, dispatcher)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Shutting down...")
		cancel()
		if err := kafkaConsumer.Close(); err != nil {
			log.Printf("Error closing Kafka consumer: %v", err)
		}
		if err := kafkaProducer.Close(); err != nil {
			log.Printf("Error closing Kafka producer: %v", err)
		}
		if err := redisClient.Close(); err != nil {
			log.Printf("Error closing Redis client: %v", err)
		}
	}()

	// Start Kafka consumer in background
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("Kafka consumer goroutine recovered from panic: %v", r)
			}
		}()

		if err := kafkaConsumer.Start(ctx); err != nil {
			log.Printf("Kafka consumer error: %v", err)
		}
	}()

	// Start server (blocking)
	log.Fatal(server.Start())
}
