package internal

import (
	"fmt"
	"os"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	Host       string `env:"HOST,default=0.0.0.0"`
	Port       int    `env:"PORT,required=true"`
	HealthPort int    `env:"HEALTH_PORT,required=true"`
	DebugPort  int    `env:"DEBUG_PORT,default=8081"`
	LogLevel   string `env:"LOG_LEVEL,default=INFO"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`
	UploadDir      string `env:"UPLOAD_DIR,required=true"`
	MaxUploadSize  int64  `env:"MAX_UPLOAD_SIZE,default=10485760"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`

	BufferSize           int           `env:"BUFFER_SIZE,required=true"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	LimitMessages        *int          `env:"LIMIT_MESSAGES"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s"`
	OperationTimeout     time.Duration `env:"OPERATION_TIMEOUT,default=5s"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,required=true"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,required=true"`

	CensoredWordsPath string `env:"CENSORED_WORDS_PATH"`
	CharReplacement   string `env:"CHARACTER_REPLACEMENT,default=*"`
	MaxContentLength  int    `env:"MAX_CONTENT_LENGTH,required=true"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}

// LoadConfig reads an optional .env file, then the environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()
	es, err := env.EnvironToEnvSet(os.Environ())
	if err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return ParseConfig(es)
}

func ParseConfig(es env.EnvSet) (Config, error) {
	var config Config
	if err := env.Unmarshal(es, &config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if config.MaxUploadSize <= 0 {
		return Config{}, fmt.Errorf("MAX_UPLOAD_SIZE must be positive, got %d", config.MaxUploadSize)
	}
	if config.ConnectionBufferSize <= 0 {
		return Config{}, fmt.Errorf("CONNECTION_BUFFER_SIZE must be positive, got %d", config.ConnectionBufferSize)
	}
	return config, nil
}
