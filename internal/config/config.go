// Package config loads the orchestrator's process configuration from the
// environment, following the teacher's Load()/getEnv idiom.
package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"scriberr/pkg/binaries"
)

// Config holds all configuration values for one orchestrator process.
type Config struct {
	// Server configuration
	Port string
	Host string

	// Database configuration
	DatabasePath string

	// File storage
	UploadDir string
	DataDir   string

	// Service identity (§6)
	ServiceName string

	// Worker queue addressing (§6)
	TranscriptionAddr string
	TranscriptionCmd  string
	DiarizationAddr   string
	DiarizationCmd    string
	PunctuationAddr   string
	PunctuationCmd    string

	// Legacy broker env vars named in spec.md §6, preserved for
	// round-tripping even though this implementation talks gRPC directly
	// rather than through a message broker (see DESIGN.md Open Questions).
	ServicesBroker string
	BrokerPass     string

	// MONGO_HOST/MONGO_PORT are accepted and ignored: this implementation
	// persists via sqlite/GORM rather than MongoDB (DESIGN.md Open
	// Questions), but the env vars are read so their presence in an
	// existing deployment's environment is not an error.
	MongoHost string
	MongoPort string

	Language    string
	Concurrency int

	FFmpegPath  string
	FFprobePath string
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	return &Config{
		Port:         getEnv("PORT", "8080"),
		Host:         getEnv("HOST", "localhost"),
		DatabasePath: getEnv("DATABASE_PATH", "data/scriberr.db"),
		UploadDir:    getEnv("UPLOAD_DIR", "data/uploads"),
		DataDir:      getEnv("DATA_DIR", "data/scratch"),

		ServiceName: getEnv("SERVICE_NAME", "transcription"),

		TranscriptionAddr: getEnv("TRANSCRIPTION_ADDR", "unix:/run/transcription.sock"),
		TranscriptionCmd:  getEnv("TRANSCRIPTION_CMD", ""),
		DiarizationAddr:   getEnv("DIARIZATION_ADDR", ""),
		DiarizationCmd:    getEnv("DIARIZATION_CMD", ""),
		PunctuationAddr:   getEnv("PUNCTUATION_ADDR", ""),
		PunctuationCmd:    getEnv("PUNCTUATION_CMD", ""),

		ServicesBroker: getEnv("SERVICES_BROKER", ""),
		BrokerPass:     getEnv("BROKER_PASS", ""),
		MongoHost:      getEnv("MONGO_HOST", ""),
		MongoPort:      getEnv("MONGO_PORT", ""),

		Language:    getEnv("LANGUAGE", "en"),
		Concurrency: getEnvAsInt("CONCURRENCY", 2),

		FFmpegPath:  binaries.FFmpeg(),
		FFprobePath: binaries.FFprobe(),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
