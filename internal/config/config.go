package config

import (
	"fmt"
	"os"
)

type Config struct {
	DBSource     string
	Port         string
	Env          string
	AdminSubject string
	JWTSecret    string
	PoolAccount  string
}

func Load() (*Config, error) {
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	admin := os.Getenv("ADMIN_SUBJECT")
	if admin == "" {
		admin = "admin"
	}

	pool := os.Getenv("POOL_ACCOUNT")
	if pool == "" {
		pool = "pool"
	}

	return &Config{
		DBSource:     dbSource,
		Port:         port,
		Env:          env,
		AdminSubject: admin,
		JWTSecret:    jwtSecret,
		PoolAccount:  pool,
	}, nil
}
