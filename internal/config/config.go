package config

import (
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	PrimaryHost string
	StandbyHost string
	DBPort      int
	DBUser      string
	DBPassword  string
	DBName      string
	DBDriver    string

	ServerID   string
	HTTPAddr   string
	ProcRoot   string
	PingTarget string

	TelegramBotToken string
	TelegramChatID   string

	LogLevel slog.Level
}

// Load reads the environment. Every key is optional.
func Load() Config {
	return FromViper(New())
}

// New returns a viper instance with the defaults registered and environment
// lookup enabled, so cobra flags can be bound on top of it.
func New() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("DB_PRIMARY_HOST", "db-primary")
	v.SetDefault("DB_STANDBY_HOST", "db-standby")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "admin")
	v.SetDefault("DB_PASSWORD", "admin123")
	v.SetDefault("DB_NAME", "monitoring")
	v.SetDefault("DB_DRIVER", "pgx")
	v.SetDefault("SERVER_ID", "WebServer-Unknown")
	v.SetDefault("HTTP_ADDR", ":80")
	v.SetDefault("HOST_PROC", "/host/proc")
	v.SetDefault("PING_TARGET", "google.com")
	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("TELEGRAM_CHAT_ID", "")
	v.SetDefault("LOG_LEVEL", "info")
	return v
}

func FromViper(v *viper.Viper) Config {
	port := v.GetInt("DB_PORT")
	if port <= 0 {
		port = 5432
	}
	return Config{
		PrimaryHost:      v.GetString("DB_PRIMARY_HOST"),
		StandbyHost:      v.GetString("DB_STANDBY_HOST"),
		DBPort:           port,
		DBUser:           v.GetString("DB_USER"),
		DBPassword:       v.GetString("DB_PASSWORD"),
		DBName:           v.GetString("DB_NAME"),
		DBDriver:         strings.TrimSpace(strings.ToLower(v.GetString("DB_DRIVER"))),
		ServerID:         v.GetString("SERVER_ID"),
		HTTPAddr:         v.GetString("HTTP_ADDR"),
		ProcRoot:         v.GetString("HOST_PROC"),
		PingTarget:       v.GetString("PING_TARGET"),
		TelegramBotToken: v.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   v.GetString("TELEGRAM_CHAT_ID"),
		LogLevel:         parseLevel(v.GetString("LOG_LEVEL")),
	}
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
