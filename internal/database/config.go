package database

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// DatabaseConfig holds the database-related configuration.
type DatabaseConfig struct {
	Type      string
	Path      string
	RedisAddr string
	RedisPass string
	RedisDB   int
}

// LoadDatabaseConfig loads database configuration from environment variables.
func LoadDatabaseConfig() (*DatabaseConfig, error) {
	dbType := os.Getenv("DATABASE_TYPE")
	if dbType == "" {
		dbType = "memory"
		logrus.Infof("DATABASE_TYPE not set. Defaulting to %s.", dbType)
	}

	config := &DatabaseConfig{
		Type: dbType,
	}

	switch dbType {
	case "memory":
	case "sqlite", "bolt":
		config.Path = os.Getenv("DATABASE_PATH")
		if config.Path == "" {
			return nil, fmt.Errorf("DATABASE_PATH is required for %s", dbType)
		}
	case "redis":
		config.RedisAddr = os.Getenv("REDIS_ADDR")
		if config.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required for RedisDB")
		}
		config.RedisPass = os.Getenv("REDIS_PASSWORD")
		dbStr := os.Getenv("REDIS_DB")
		if dbStr == "" {
			config.RedisDB = 0 // default DB
		} else {
			db, err := strconv.Atoi(dbStr)
			if err != nil {
				return nil, fmt.Errorf("invalid REDIS_DB value: %v", err)
			}
			config.RedisDB = db
		}
	default:
		return nil, fmt.Errorf("unsupported DATABASE_TYPE: %s", dbType)
	}

	return config, nil
}

// Open returns the backend selected by cfg.
func Open(ctx context.Context, cfg *DatabaseConfig, logger *logrus.Logger) (Database, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryDB(), nil
	case "sqlite":
		return NewSQLiteDB(cfg.Path, logger)
	case "bolt":
		return NewBoltDB(cfg.Path, logger)
	case "redis":
		return NewRedisDB(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_TYPE: %s", cfg.Type)
	}
}
