package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hamed0406/pulsewatch/internal/notify"
)

type Config struct {
	Addr     string // API bind address, e.g. "127.0.0.1:8080" or ":8080" in a container
	LogDir   string // logs directory
	LogLevel string // debug, info, warn, error

	RedisURL    string // hit store; empty means in-memory
	DatabaseURL string // notification state in postgres; empty means RedisURL (or memory)

	SecretSeed  string // keypair seed, required
	KeysDir     string // derived keys are written here for inspection; empty skips
	FleetConfig string // path to the fleet YAML

	Tick          time.Duration
	MaxConcurrent int // 0 = no cap

	PublicAPIKeys []string
	AdminAPIKeys  []string
	PublicRPM     int
	PublicBurst   int
	AdminRPM      int
	AdminBurst    int
	CORSOrigins   []string

	Notify notify.Settings
}

func FromEnv() Config {
	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = "127.0.0.1:8080"
	}

	return Config{
		Addr:     addr,
		LogDir:   envOr("LOG_DIR", "logs"),
		LogLevel: envOr("LOG_LEVEL", "info"),

		RedisURL:    os.Getenv("REDIS_URL"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		SecretSeed:  os.Getenv("SECRET_SEED"),
		KeysDir:     os.Getenv("KEYS_DIR"),
		FleetConfig: envOr("FLEET_CONFIG", "fleet.yaml"),

		Tick:          time.Duration(envInt("TICK_INTERVAL_MS", 1000, 1)) * time.Millisecond,
		MaxConcurrent: envInt("MAX_CONCURRENT_CHECKS", 0, 0),

		PublicAPIKeys: splitList(os.Getenv("PUBLIC_API_KEYS")),
		AdminAPIKeys:  splitList(os.Getenv("ADMIN_API_KEYS")),
		PublicRPM:     envInt("PUBLIC_RPM", 120, 0),
		PublicBurst:   envInt("PUBLIC_BURST", 60, 1),
		AdminRPM:      envInt("ADMIN_RPM", 60, 0),
		AdminBurst:    envInt("ADMIN_BURST", 30, 1),
		CORSOrigins:   splitList(os.Getenv("ALLOWED_ORIGINS")),

		Notify: notify.Settings{
			SlackWebhook:   os.Getenv("SLACK_WEBHOOK_URL"),
			SMTPHost:       os.Getenv("SMTP_HOST"),
			SMTPPort:       envInt("SMTP_PORT", 587, 1),
			SMTPUsername:   os.Getenv("SMTP_USERNAME"),
			SMTPPassword:   os.Getenv("SMTP_PASSWORD"),
			From:           os.Getenv("NOTIFY_FROM"),
			FromName:       envOr("NOTIFY_FROM_NAME", "Pulsewatch"),
			SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		},
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// envInt returns def when the variable is unset, unparsable or below min.
func envInt(key string, def, min int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < min {
		return def
	}
	return n
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
