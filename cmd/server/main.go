package main

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/doctorauto/go-patio-sync/internal/api/handlers"
	"github.com/doctorauto/go-patio-sync/internal/api/middleware"
	"github.com/doctorauto/go-patio-sync/internal/config"
	"github.com/doctorauto/go-patio-sync/internal/repository"
	"github.com/doctorauto/go-patio-sync/internal/service"
)

func main() {

	// LOAD ENV
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed load config: ", err)
	}

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetLevel(log.DebugLevel)
	}

	// INIT DB
	var repo *repository.PostgresRepo
	if cfg.DatabaseURL != "" {
		repo, err = repository.NewPostgresRepoFromDSN(cfg.DatabaseURL)
	} else {
		repo, err = repository.NewPostgresRepoFromConfig(&repository.DBConfig{
			Host: cfg.DBHost,
			Port: cfg.DBPort,
			User: cfg.DBUser,
			Pass: cfg.DBPass,
			Name: cfg.DBName,
		})
	}
	if err != nil {
		log.Fatal("failed to connect database: ", err)
	}

	// MIGRATIONS
	if err := repo.RunMigrations(context.Background()); err != nil {
		log.Fatal("migration error: ", err)
	}

	// ADMIN SEED
	hashed, _ := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err := repo.UpsertAdmin(context.Background(), cfg.AdminUsername, string(hashed)); err != nil {
		log.Warn("failed seeding admin: ", err)
	}

	// STATUS MAP
	statusMap, err := service.LoadStatusMap(cfg.StatusMapFile)
	if err != nil {
		log.Fatal("failed to load status map: ", err)
	}

	// SERVICES
	trello := service.NewTrelloService(repo, cfg.TrelloAPIKey, cfg.TrelloToken, cfg.TrelloBoardID)
	kommo := service.NewKommoService(repo, cfg.KommoBaseURL,
		cfg.KommoAccessToken, cfg.KommoRefreshToken,
		cfg.KommoClientID, cfg.KommoClientSecret, cfg.KommoRedirectURI)
	notifier := service.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramChatID)

	sync := &service.SyncService{
		Repo:             repo,
		Trello:           trello,
		Kommo:            kommo,
		Notifier:         notifier,
		StatusMap:        statusMap,
		FieldIDs:         service.LeadFieldIDs{Plate: cfg.KommoFieldPlate, Name: cfg.KommoFieldName, Date: cfg.KommoFieldDate},
		PipelineID:       cfg.KommoPipelineID,
		StatusConfirmed:  cfg.KommoStatusConfirmed,
		StatusDelivered:  cfg.KommoStatusDelivered,
		ScheduledListID:  cfg.TrelloScheduledListID,
		EntryDateFieldID: cfg.TrelloEntryDateFieldID,
	}

	// HANDLERS
	webhookHandler := handlers.NewWebhookHandler(sync, cfg.TrelloWebhookSecret)
	telegramHandler := handlers.NewTelegramHandler(notifier)
	syncHandler := handlers.NewSyncHandler(trello, repo)
	authHandler := handlers.NewAuthHandler(repo, cfg.JWTSecret)

	// ROUTER
	r := gin.Default()
	r.Use(middleware.RequestID())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "HEAD"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Trello-Webhook"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := r.Group("/api/v1")

	// WEBHOOK ROUTES
	api.HEAD("/webhook/trello", webhookHandler.TrelloHead)
	api.POST("/webhook/trello", webhookHandler.TrelloEvent)
	api.POST("/webhook/kommo", webhookHandler.KommoEvent)

	// MANUAL NOTIFY (shop-floor buttons)
	api.POST("/notify", telegramHandler.Notify)

	// AUTH ROUTES
	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
	}

	// MANUAL SYNC ROUTES (admin only)
	sy := api.Group("/sync", middleware.Auth(cfg.JWTSecret))
	{
		sy.POST("/trello", syncHandler.SyncBoard)
		sy.GET("/links", syncHandler.ListLinks)
	}

	// START SERVER
	log.Info("Server running on port: ", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}
