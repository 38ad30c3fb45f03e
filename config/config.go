package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Server       Server
	Database     Database
	Redis        Redis
	Events       Events
	Casdoor      Casdoor
	Upload       Upload
	GeminiApiKey string
	GeminiModel  string
	LogLevel     string
}

type Server struct {
	Port           string
	Mode           string
	AllowedOrigins []string
}

type Database struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type Redis struct {
	Addr           string
	Password       string
	DB             int
	AccessCacheTTL time.Duration
}

type Events struct {
	KafkaBrokers []string
	Topic        string
}

type Casdoor struct {
	Endpoint      string
	ClientID      string
	ClientSecret  string
	Certificate   string
	Organization  string
	Application   string
	DevUserHeader bool
}

// Enabled reports whether enough settings exist to verify Casdoor tokens.
func (c Casdoor) Enabled() bool {
	return c.Endpoint != "" && c.ClientID != "" && c.Certificate != ""
}

type Upload struct {
	Dir       string
	MaxBytes  int64
	URLPrefix string
}

func NewConfig() (*Config, error) {
	// Variables already exported in the environment win over the file.
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded by godotenv")
	}

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("GIN_MODE", "debug")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DATABASE_SSLMODE", "disable")
	viper.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("ACCESS_CACHE_TTL", "60s")
	viper.SetDefault("EVENTS_TOPIC", "cefrexam.events")
	viper.SetDefault("AUTH_DEV_HEADER", false)
	viper.SetDefault("UPLOAD_DIR", "uploads")
	viper.SetDefault("UPLOAD_MAX_BYTES", 10<<20)

	if err := viper.ReadInConfig(); err != nil {
		log.Warn().Err(err).Msg("Error reading config file")
	}

	var config Config

	config.Server.Port = viper.GetString("SERVER_PORT")
	config.Server.Mode = viper.GetString("GIN_MODE")
	config.Server.AllowedOrigins = splitList(viper.GetString("CORS_ALLOWED_ORIGINS"))
	config.Database.Host = viper.GetString("DATABASE_HOST")
	config.Database.Port = viper.GetString("DATABASE_PORT")
	config.Database.User = viper.GetString("DATABASE_USER")
	config.Database.Password = viper.GetString("DATABASE_PASSWORD")
	config.Database.Name = viper.GetString("DATABASE_NAME")
	config.Database.SSLMode = viper.GetString("DATABASE_SSLMODE")

	config.Redis.Addr = viper.GetString("REDIS_ADDR")
	config.Redis.Password = viper.GetString("REDIS_PASSWORD")
	config.Redis.DB = viper.GetInt("REDIS_DB")
	config.Redis.AccessCacheTTL = viper.GetDuration("ACCESS_CACHE_TTL")

	config.Events.KafkaBrokers = splitList(viper.GetString("KAFKA_BROKERS"))
	config.Events.Topic = viper.GetString("EVENTS_TOPIC")

	config.Casdoor.Endpoint = viper.GetString("CASDOOR_ENDPOINT")
	config.Casdoor.ClientID = viper.GetString("CASDOOR_CLIENT_ID")
	config.Casdoor.ClientSecret = viper.GetString("CASDOOR_CLIENT_SECRET")
	config.Casdoor.Certificate = viper.GetString("CASDOOR_CERTIFICATE")
	config.Casdoor.Organization = viper.GetString("CASDOOR_ORGANIZATION")
	config.Casdoor.Application = viper.GetString("CASDOOR_APPLICATION")
	config.Casdoor.DevUserHeader = viper.GetBool("AUTH_DEV_HEADER")

	config.Upload.Dir = viper.GetString("UPLOAD_DIR")
	config.Upload.MaxBytes = viper.GetInt64("UPLOAD_MAX_BYTES")
	config.Upload.URLPrefix = "/uploads"

	config.GeminiApiKey = viper.GetString("GEMINI_API_KEY")
	config.GeminiModel = viper.GetString("GEMINI_MODEL")
	config.LogLevel = viper.GetString("LOG_LEVEL")

	log.Info().
		Str("port", config.Server.Port).
		Str("dbHost", config.Database.Host).
		Str("redis", config.Redis.Addr).
		Strs("kafka", config.Events.KafkaBrokers).
		Bool("casdoor", config.Casdoor.Enabled()).
		Bool("gemini", config.GeminiApiKey != "").
		Msg("Config loaded")
	return &config, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
