package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MQConfig struct {
	URL string `yaml:"url"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

// ProviderConfig holds the OAuth client for one mailbox provider family.
type ProviderConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenURL     string `yaml:"token_url"`
	BaseURL      string `yaml:"base_url"`
	Scope        string `yaml:"scope"`
}

type ProvidersConfig struct {
	Outlook ProviderConfig `yaml:"outlook"`
	Gmail   ProviderConfig `yaml:"gmail"`
}

type SyncConfig struct {
	MaxMessages        int `yaml:"max_messages"`
	FetchConcurrency   int `yaml:"fetch_concurrency"`
	CallTimeoutSeconds int `yaml:"call_timeout_seconds"`
	LockTTLSeconds     int `yaml:"lock_ttl_seconds"`
}

func (c SyncConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

func (c SyncConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

type Config struct {
	DB        DBConfig        `yaml:"db"`
	Redis     RedisConfig     `yaml:"redis"`
	MQ        MQConfig        `yaml:"mq"`
	JWT       JWTConfig       `yaml:"jwt"`
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Sync      SyncConfig      `yaml:"sync"`
}

func Load() *Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}

	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open %s: %v", path, err)
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		log.Fatalf("failed to decode %s: %v", path, err)
	}

	applyDefaults(&cfg)
	overrideFromEnv(&cfg)

	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Sync.MaxMessages == 0 {
		cfg.Sync.MaxMessages = 50
	}
	if cfg.Sync.FetchConcurrency == 0 {
		cfg.Sync.FetchConcurrency = 5
	}
	if cfg.Sync.CallTimeoutSeconds == 0 {
		cfg.Sync.CallTimeoutSeconds = 15
	}
	if cfg.Sync.LockTTLSeconds == 0 {
		cfg.Sync.LockTTLSeconds = 300
	}
}

func overrideFromEnv(cfg *Config) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DB.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.DB.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DB.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DB.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.DB.Name = name
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.MQ.URL = url
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWT.Secret = secret
	}

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Server.Port = port
	}

	if id := os.Getenv("OUTLOOK_CLIENT_ID"); id != "" {
		cfg.Providers.Outlook.ClientID = id
	}
	if secret := os.Getenv("OUTLOOK_CLIENT_SECRET"); secret != "" {
		cfg.Providers.Outlook.ClientSecret = secret
	}
	if id := os.Getenv("GMAIL_CLIENT_ID"); id != "" {
		cfg.Providers.Gmail.ClientID = id
	}
	if secret := os.Getenv("GMAIL_CLIENT_SECRET"); secret != "" {
		cfg.Providers.Gmail.ClientSecret = secret
	}
}
