package main

import (
	"context"
	"log"

	"github.com/awardflow/awardflow/internal/awards"
	"github.com/awardflow/awardflow/internal/config"
	"github.com/awardflow/awardflow/internal/db"
	"github.com/awardflow/awardflow/internal/httpapi"
	"github.com/awardflow/awardflow/internal/models"
	"github.com/awardflow/awardflow/internal/projects"
	"github.com/awardflow/awardflow/internal/store/rabbitmq"
	"github.com/awardflow/awardflow/internal/store/redisstore"
	"github.com/awardflow/awardflow/internal/submission"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	if err := gdb.AutoMigrate(
		&models.User{},
		&awards.Award{},
		&projects.Project{},
		&submission.Submission{},
		&submission.ChatSession{},
		&submission.Job{},
	); err != nil {
		log.Fatalf("automigrate: %v", err)
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()
	if err := rds.Ping(context.Background()); err != nil {
		log.Printf("redis ping: %v (captcha delivery will fail until redis is up)", err)
	}

	rabbit, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit connect: %v", err)
	}
	defer rabbit.Close()

	r := httpapi.NewRouter(gdb, cfg, rds, rabbit)

	log.Printf("server listening on %s", cfg.HTTPAddr)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
