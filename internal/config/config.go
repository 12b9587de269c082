package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	// RedisAddr empty means no fast-path ledger; every draw runs the
	// transactional fallback.
	RedisAddr     string
	RedisPassword string

	JWTSecret     string
	AdminUsername string
	AdminPassword string

	AppPort string

	DrawCooldown      time.Duration
	CacheRefresh      time.Duration
	StockSyncInterval time.Duration
}

func env(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func FromEnv() Config {
	return Config{
		DBHost:            env("DB_HOST", "localhost"),
		DBUser:            env("DB_USER", "postgres"),
		DBPassword:        env("DB_PASSWORD", "postgres"),
		DBName:            env("DB_NAME", "lottery"),
		DBPort:            env("DB_PORT", "5432"),
		RedisAddr:         env("REDIS_ADDR", ""),
		RedisPassword:     env("REDIS_PASSWORD", ""),
		JWTSecret:         env("JWT_SECRET", "dev-secret-change-me"),
		AdminUsername:     env("ADMIN_USERNAME", "admin"),
		AdminPassword:     env("ADMIN_PASSWORD", "admin"),
		AppPort:           env("APP_PORT", "8080"),
		DrawCooldown:      time.Duration(envInt("DRAW_COOLDOWN_SECONDS", 60)) * time.Second,
		CacheRefresh:      time.Duration(envInt("PRIZE_CACHE_REFRESH_MS", 800)) * time.Millisecond,
		StockSyncInterval: time.Duration(envInt("STOCK_SYNC_SECONDS", 5)) * time.Second,
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}
