package config

import "github.com/caarlos0/env/v10"

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort   string `env:"HTTP_PORT" envDefault:"8080"`
	LLMAPIKey  string `env:"LLM_API_KEY,required"`
	LLMBaseURL string `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMModel   string `env:"LLM_MODEL" envDefault:"gpt-5.1"`

	RetryMaxAttempts int `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryBaseDelayMS int `env:"RETRY_BASE_DELAY_MS" envDefault:"2000"`

	GreetingText string `env:"GREETING_TEXT"`
	FallbackText string `env:"FALLBACK_TEXT"`

	DatabaseURL string `env:"DATABASE_URL"`

	RedisAddr       string `env:"REDIS_ADDR"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
	RedisDB         int    `env:"REDIS_DB" envDefault:"0"`
	SendRateWindowS int    `env:"SEND_RATE_WINDOW_SECONDS" envDefault:"60"`
	SendRateMax     int    `env:"SEND_RATE_MAX" envDefault:"20"`

	JWTSecret           string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"60"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
