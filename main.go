package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pepe999/PartyGames-BE/config"
	"github.com/pepe999/PartyGames-BE/handlers"
	"github.com/pepe999/PartyGames-BE/middleware"
	"github.com/pepe999/PartyGames-BE/models"
	"github.com/pepe999/PartyGames-BE/routes"
	"github.com/pepe999/PartyGames-BE/services"
	"github.com/pepe999/PartyGames-BE/storage"
)

func main() {
	cfg := config.Load()
	log := config.InitLogger(cfg)

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	err = db.AutoMigrate(
		&models.GameMeta{},
		&models.Prompt{},
		&models.Room{},
		&models.Player{},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	redisClient := config.InitRedis(cfg)

	store := storage.NewPostgresStore(db)
	supervisor := services.NewSupervisor(log)
	codes := services.NewCodeAllocator(store, log)
	guard := services.NewPasswordGuard(services.NewRedisAttemptLimiter(redisClient), log)
	catalog := services.NewPromptCatalog(store, log)
	snapshots := services.NewSnapshotCache(redisClient, log)

	hub := services.NewHub(log)
	registry := services.NewRoomRegistry(store, supervisor, codes, guard, hub, snapshots, log)
	sessions := services.NewSessionCoordinator(store, supervisor, catalog, hub, registry, log)
	gateway := services.NewGateway(registry, sessions, log)
	hub.AttachRouter(gateway)

	// The registry raises lifecycle signals instead of depending on the
	// session coordinator.
	registry.OnGameStarted(func(code string) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sessions.Begin(ctx, code); err != nil {
			log.Error().Str("room", code).Err(err).Msg("starting session")
		}
	})
	registry.OnSessionEnd(sessions.End)
	registry.SessionViewer(sessions.View)

	go hub.Run()

	roomHandler := handlers.NewRoomHandler(registry, sessions)

	router := gin.Default()
	router.Use(middleware.CORS())
	routes.SetupRoutes(router, roomHandler, registry, hub, cfg.JWTSecret, log)

	log.Info().Str("port", cfg.Port).Msg("server starting")
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}
