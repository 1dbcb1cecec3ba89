package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Settings is the server configuration, read from the environment
// (optionally seeded from a .env file).
type Settings struct {
	Port string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	TokenTTL    time.Duration

	MongoDB   string
	GCSBucket string

	VertexProject  string
	VertexLocation string
	VertexModel    string

	StatsTTL         time.Duration
	EscalationStream string
	EscalationGroup  string
	NumWorkers       int

	SeedAdminEmail    string
	SeedAdminPassword string
}

// Load reads .env (if present) and returns Settings with defaults applied.
func Load() Settings {
	_ = godotenv.Load()

	return Settings{
		Port: getenv("PORT", "8080"),

		JWTSecret:   os.Getenv("JWT_SECRET"),
		JWTIssuer:   getenv("JWT_ISSUER", "helpdesk"),
		JWTAudience: os.Getenv("JWT_AUDIENCE"),
		TokenTTL:    getDuration("TOKEN_TTL", 12*time.Hour),

		MongoDB:   getenv("MONGO_DB", "helpdesk"),
		GCSBucket: os.Getenv("GCS_BUCKET"),

		VertexProject:  os.Getenv("VERTEX_PROJECT"),
		VertexLocation: getenv("VERTEX_LOCATION", "us-central1"),
		VertexModel:    os.Getenv("VERTEX_MODEL"),

		StatsTTL:         getDuration("STATS_CACHE_TTL", 30*time.Second),
		EscalationStream: getenv("ESCALATION_STREAM", "escalation:stream"),
		EscalationGroup:  getenv("ESCALATION_GROUP", "escalation-workers"),
		NumWorkers:       getInt("ESCALATION_WORKERS", 2),

		SeedAdminEmail:    os.Getenv("SEED_ADMIN_EMAIL"),
		SeedAdminPassword: os.Getenv("SEED_ADMIN_PASSWORD"),
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
