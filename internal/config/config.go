package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	DB       *DBconfig
	RabbitMq *RabbitMqconfig
	Redis    *Redisconfig
	Srv      *Serviceconfig
	App      *Appconfig
	Log      *Loggerconfig
}

type DBconfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

type RabbitMqconfig struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string
	Enabled  bool
}

type Redisconfig struct {
	Addr     string
	Password string
	GeoKey   string
	Enabled  bool
}

type Serviceconfig struct {
	HTTPPort int
}

type Appconfig struct {
	JwtSecret string

	SearchRadiusKm  float64
	CandidateLimit  int
	StalenessWindow time.Duration
	SearchTimeout   time.Duration
	SweepInterval   time.Duration

	CommissionRate     decimal.Decimal
	DailyTransferLimit decimal.Decimal
}

type Loggerconfig struct {
	Level string
}

func New() (*Config, error) {
	getEnv := func(key, def string) string {
		val := os.Getenv(key)
		if val == "" {
			return def
		}
		return val
	}

	getEnvInt := func(key string, def int) int {
		valStr := os.Getenv(key)
		if valStr == "" {
			return def
		}
		val, err := strconv.Atoi(valStr)
		if err != nil {
			fmt.Printf("invalid %v, using default %v\n", key, def)
			return def
		}
		return val
	}

	getEnvFloat := func(key string, def float64) float64 {
		valStr := os.Getenv(key)
		if valStr == "" {
			return def
		}
		val, err := strconv.ParseFloat(valStr, 64)
		if err != nil {
			fmt.Printf("invalid %v, using default %v\n", key, def)
			return def
		}
		return val
	}

	getEnvDuration := func(key string, def time.Duration) time.Duration {
		valStr := os.Getenv(key)
		if valStr == "" {
			return def
		}
		val, err := time.ParseDuration(valStr)
		if err != nil {
			fmt.Printf("invalid %v, using default %v\n", key, def)
			return def
		}
		return val
	}

	getEnvDecimal := func(key, def string) decimal.Decimal {
		valStr := os.Getenv(key)
		if valStr == "" {
			valStr = def
		}
		val, err := decimal.NewFromString(valStr)
		if err != nil {
			fmt.Printf("invalid %v, using default %v\n", key, def)
			val = decimal.RequireFromString(def)
		}
		return val
	}

	cnf := &Config{
		DB: &DBconfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "ridelink_user"),
			Password: getEnv("DB_PASSWORD", "ridelink_pass"),
			Database: getEnv("DB_NAME", "ridelink_db"),
		},
		RabbitMq: &RabbitMqconfig{
			Host:     getEnv("RABBITMQ_HOST", "localhost"),
			Port:     getEnvInt("RABBITMQ_PORT", 5672),
			User:     getEnv("RABBITMQ_USER", "guest"),
			Password: getEnv("RABBITMQ_PASSWORD", "guest"),
			VHost:    getEnv("RABBITMQ_VHOST", ""),
			Enabled:  getEnv("RABBITMQ_ENABLED", "false") == "true",
		},
		Redis: &Redisconfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			GeoKey:   getEnv("REDIS_GEO_KEY", "drivers_geo"),
			Enabled:  getEnv("REDIS_ADDR", "") != "",
		},
		Srv: &Serviceconfig{
			HTTPPort: getEnvInt("HTTP_PORT", 3000),
		},
		App: &Appconfig{
			JwtSecret:          getEnv("JWT_SECRET", "dev-secret"),
			SearchRadiusKm:     getEnvFloat("SEARCH_RADIUS_KM", 15),
			CandidateLimit:     getEnvInt("CANDIDATE_LIMIT", 10),
			StalenessWindow:    getEnvDuration("POSITION_STALENESS_WINDOW", 2*time.Minute),
			SearchTimeout:      getEnvDuration("SEARCH_TIMEOUT", 10*time.Minute),
			SweepInterval:      getEnvDuration("SWEEP_INTERVAL", 30*time.Second),
			CommissionRate:     getEnvDecimal("COMMISSION_RATE", "0.20"),
			DailyTransferLimit: getEnvDecimal("DAILY_TRANSFER_LIMIT", "100000.00"),
		},
		Log: &Loggerconfig{
			Level: getEnv("LOG_LEVEL", "INFO"),
		},
	}

	return cnf, nil
}
