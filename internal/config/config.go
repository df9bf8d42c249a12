package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                    string
	AllowedOrigin           string
	DatabaseURL             string
	RedisAddr               string
	RedisPassword           string
	RedisDB                 int
	ClientID                string
	SyncReportTTLSeconds    int
	SyncAuditBatchSize      int
	SyncAuditTimeoutSeconds int
	DedupTTLSeconds         int
	AuthSecret              string
	AccessTokenTTLMinutes   int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	reportTTL, err := strconv.Atoi(getEnv("SYNC_REPORT_TTL_SECONDS", "20"))
	if err != nil || reportTTL < 1 {
		reportTTL = 20
	}
	batchSize, err := strconv.Atoi(getEnv("SYNC_AUDIT_BATCH_SIZE", "500"))
	if err != nil || batchSize < 1 {
		batchSize = 500
	}
	auditTimeout, err := strconv.Atoi(getEnv("SYNC_AUDIT_TIMEOUT_SECONDS", "30"))
	if err != nil || auditTimeout < 1 {
		auditTimeout = 30
	}
	dedupTTL, err := strconv.Atoi(getEnv("DEDUP_TTL_SECONDS", "30"))
	if err != nil || dedupTTL < 1 {
		dedupTTL = 30
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}

	cfg := Config{
		Port:                    getEnv("PORT", "8080"),
		AllowedOrigin:           getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 redisDB,
		ClientID:                getEnv("DEFAULT_CLIENT_ID", "main-client"),
		SyncReportTTLSeconds:    reportTTL,
		SyncAuditBatchSize:      batchSize,
		SyncAuditTimeoutSeconds: auditTimeout,
		DedupTTLSeconds:         dedupTTL,
		AuthSecret:              strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:   tokenTTL,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
