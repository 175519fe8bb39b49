package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all configuration fields for the application.
type Config struct {
	// Cloud platform.
	CloudBaseURLV1      string
	CloudAPIKeyV1       string
	CloudBaseURLV3      string
	CloudAPIKeyV3       string
	CloudUserIdentifier string

	// On-Premise platform.
	OnPremiseBaseURLV1      string
	OnPremiseAPIKeyV1       string
	OnPremiseBaseURLV3      string
	OnPremiseAPIKeyV3       string
	OnPremiseDepartmentID   string
	OnPremiseRecipientEmail string

	// Storage.
	DatabaseDriver   string
	DatabaseDSN      string
	AgentMappingFile string

	// HTTP.
	Port       string
	AdminToken string

	// Logging.
	LogLevel  string
	LogFormat string

	// Event publishing.
	RabbitURL    string
	RabbitQueue  string
	RabbitPrefix string

	// Classification.
	PlaceholderAgentAsCustomer bool
	FanPageNames               []string
	BotSenders                 []string
}

// Load reads configuration from the environment, after loading a .env
// file when one is present. Environment variables take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		CloudBaseURLV1:      os.Getenv("CLOUD_BASE_URL_V1"),
		CloudAPIKeyV1:       os.Getenv("CLOUD_API_KEY_V1"),
		CloudBaseURLV3:      os.Getenv("CLOUD_BASE_URL_V3"),
		CloudAPIKeyV3:       os.Getenv("CLOUD_API_KEY_V3"),
		CloudUserIdentifier: os.Getenv("CLOUD_USER_IDENTIFIER"),

		OnPremiseBaseURLV1:      os.Getenv("ONPREMISE_BASE_URL_V1"),
		OnPremiseAPIKeyV1:       os.Getenv("ONPREMISE_API_KEY_V1"),
		OnPremiseBaseURLV3:      os.Getenv("ONPREMISE_BASE_URL_V3"),
		OnPremiseAPIKeyV3:       os.Getenv("ONPREMISE_API_KEY_V3"),
		OnPremiseDepartmentID:   os.Getenv("ONPREMISE_DEPARTMENT_ID"),
		OnPremiseRecipientEmail: os.Getenv("ONPREMISE_RECIPIENT_EMAIL"),

		DatabaseDriver:   getenv("DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:      getenv("DATABASE_DSN", "ladesk_integration.db"),
		AgentMappingFile: getenv("AGENT_MAPPING_FILE", "agent_mapping.json"),

		Port:       getenv("PORT", "3000"),
		AdminToken: os.Getenv("ADMIN_TOKEN"),

		LogLevel:  os.Getenv("LOG_LEVEL"),
		LogFormat: os.Getenv("LOG_FORMAT"),

		RabbitURL:    os.Getenv("RABBITMQ_URL"),
		RabbitQueue:  os.Getenv("RABBITMQ_QUEUE"),
		RabbitPrefix: os.Getenv("RABBITMQ_QUEUE_PREFIX"),

		PlaceholderAgentAsCustomer: getenvBool("CLASSIFY_PLACEHOLDER_AGENT_AS_CUSTOMER", true),
		FanPageNames:               getenvList("FAN_PAGE_NAMES"),
		BotSenders:                 getenvList("BOT_SENDERS"),
	}

	log.Info().
		Str("databaseDriver", cfg.DatabaseDriver).
		Str("port", cfg.Port).
		Bool("placeholderAgentAsCustomer", cfg.PlaceholderAgentAsCustomer).
		Msg("Configuration loaded")
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid boolean in environment, using default")
		return fallback
	}
	return b
}

func getenvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
