package config

import (
	"os"
	"strconv"
)

type Config struct {
	// APP
	AppEnv string
	Port   string

	// Database
	DatabaseURL string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPass      string
	DBName      string

	JWTSecret string

	// Admin login
	AdminUsername string
	AdminPassword string

	// Trello
	TrelloAPIKey        string
	TrelloToken         string
	TrelloBoardID       string
	TrelloWebhookSecret string
	// List that receives cards for freshly confirmed leads.
	TrelloScheduledListID string
	// "Data de Entrada" custom field on the board.
	TrelloEntryDateFieldID string

	// Kommo
	KommoBaseURL      string
	KommoAccessToken  string
	KommoRefreshToken string
	KommoClientID     string
	KommoClientSecret string
	KommoRedirectURI  string

	// Pipeline DOCTOR PRIME and its qualifying statuses.
	KommoPipelineID      int64
	KommoStatusConfirmed int64
	KommoStatusDelivered int64

	// Lead custom field ids (placa / nome / data do agendamento).
	KommoFieldPlate int64
	KommoFieldName  int64
	KommoFieldDate  int64

	// Optional JSON file overriding the Trello list -> Kommo status table.
	StatusMapFile string

	// Telegram
	TelegramBotToken string
	TelegramChatID   string
}

func Load() (*Config, error) {
	cfg := &Config{
		// App
		AppEnv: getEnv("APP_ENV", "development"),
		Port:   getEnv("PORT", "8001"),

		// DB
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBHost:      getEnv("DB_HOST", "127.0.0.1"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPass:      getEnv("DB_PASS", ""),
		DBName:      getEnv("DB_NAME", "patio_sync"),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "secret123"),

		// Admin login
		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "doctorauto-2026"),

		// Trello
		TrelloAPIKey:           getEnv("TRELLO_API_KEY", ""),
		TrelloToken:            getEnv("TRELLO_TOKEN", ""),
		TrelloBoardID:          getEnv("TRELLO_BOARD_ID", "NkhINjF2"),
		TrelloWebhookSecret:    getEnv("TRELLO_WEBHOOK_SECRET", "doctor-auto-webhook-secret"),
		TrelloScheduledListID:  getEnv("TRELLO_LIST_ID_AGENDADOS", "69562921014d7fe4602668c2"),
		TrelloEntryDateFieldID: getEnv("TRELLO_CUSTOM_FIELD_DATA_ENTRADA", "6956da66bd77b3dc2271ad4b"),

		// Kommo
		KommoBaseURL:      getEnv("KOMMO_ACCOUNT_DOMAIN", "https://doctorautobosch.kommo.com"),
		KommoAccessToken:  getEnv("KOMMO_ACCESS_TOKEN", ""),
		KommoRefreshToken: getEnv("KOMMO_REFRESH_TOKEN", ""),
		KommoClientID:     getEnv("KOMMO_CLIENT_ID", ""),
		KommoClientSecret: getEnv("KOMMO_CLIENT_SECRET", ""),
		KommoRedirectURI:  getEnv("KOMMO_REDIRECT_URI", ""),

		KommoPipelineID:      getEnvInt64("KOMMO_PIPELINE_ID", 12704980),
		KommoStatusConfirmed: getEnvInt64("KOMMO_STATUS_CONFIRMADO", 98072196),
		KommoStatusDelivered: getEnvInt64("KOMMO_STATUS_ENTREGUE", 98067596),

		KommoFieldPlate: getEnvInt64("KOMMO_FIELD_PLACA", 966001),
		KommoFieldName:  getEnvInt64("KOMMO_FIELD_NOME", 966003),
		KommoFieldDate:  getEnvInt64("KOMMO_FIELD_DATA", 966023),

		StatusMapFile: getEnv("STATUS_MAP_FILE", ""),

		// Telegram
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}

	return cfg, nil
}

// getEnv returns environment variable or default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt64 returns int64 from env or default.
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
