package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type HTTPServer struct {
	Host string
	Port string
}

type RedisCache struct {
	Host     string
	Port     string
	Password string
}

type Postgres struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string
}

// Engine holds the matching and voting tunables.
type Engine struct {
	RoomCapacity       int
	RoomTTL            time.Duration
	GroupTTL           time.Duration
	DefaultMode        string
	PoolSize           int
	MaxRounds          int
	RoundTimeout       time.Duration
	GroupSweepInterval time.Duration
	RoundSweepInterval time.Duration
}

type Config struct {
	HTTP     HTTPServer
	Redis    RedisCache
	Postgres Postgres
	Engine   Engine
}

const logtag = "[config]"

func Load() *Config {
	configPath := flag.String("config", "", "path env file")
	flag.Parse()

	if *configPath != "" {
		if err := godotenv.Load(*configPath); err != nil {
			log.Fatalf("%s err loading env from file : %v", logtag, err)
		}
		log.Printf("%s using env from : %s", logtag, *configPath)
	} else {
		log.Printf("%s using env from .env", logtag)
		_ = godotenv.Load()
	}

	cfg := &Config{
		HTTP:     *newHTTP(),
		Redis:    *newRedis(),
		Postgres: *newPostgres(),
		Engine:   *newEngine(),
	}

	log.Printf("%s backend config : %+v\n", logtag, cfg)
	return cfg
}

func newHTTP() *HTTPServer {
	return &HTTPServer{
		Port: getenv("HTTP_PORT", "8080"),
		Host: getenv("HTTP_HOST", "localhost"),
	}
}

func newRedis() *RedisCache {
	return &RedisCache{
		Port:     getenv("REDIS_PORT", "6379"),
		Host:     getenv("REDIS_HOST", "redis"),
		Password: getenv("REDIS_PASSWORD", "shared"),
	}
}

func newPostgres() *Postgres {
	return &Postgres{
		Host:           getenv("DB_HOST", "localhost"),
		Port:           getenv("DB_PORT", "5432"),
		User:           getenv("DB_USER", "admin"),
		Password:       getenv("DB_PASSWORD", "shared"),
		DBName:         getenv("DB_NAME", "feastfriends"),
		SSLMode:        getenv("DB_SSLMODE", "disable"),
		MigrationsPath: getenv("DB_MIGRATIONS_PATH", "migrations"),
	}
}

func newEngine() *Engine {
	return &Engine{
		RoomCapacity:       getenvInt("ROOM_CAPACITY", 10),
		RoomTTL:            getenvDuration("ROOM_TTL", 20*time.Minute),
		GroupTTL:           getenvDuration("GROUP_TTL", 30*time.Minute),
		DefaultMode:        getenv("VOTING_DEFAULT_MODE", "sequential"),
		PoolSize:           getenvInt("VOTING_POOL_SIZE", 10),
		MaxRounds:          getenvInt("VOTING_MAX_ROUNDS", 5),
		RoundTimeout:       getenvDuration("VOTING_ROUND_TIMEOUT", time.Minute),
		GroupSweepInterval: getenvDuration("SWEEP_GROUP_INTERVAL", 30*time.Second),
		RoundSweepInterval: getenvDuration("SWEEP_ROUND_INTERVAL", 5*time.Second),
	}
}

func getenv(key, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		fmt.Printf("%s %s undefined. Using default value %s\n", logtag, key, defaultValue)
		return defaultValue
	}
	fmt.Printf("%s %s = %s\n", logtag, key, val)
	return val
}

func getenvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		log.Printf("%s %s is not an int, using default %d", logtag, key, defaultValue)
		return defaultValue
	}
	return parsed
}

func getenvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		log.Printf("%s %s is not a duration, using default %s", logtag, key, defaultValue)
		return defaultValue
	}
	return parsed
}
