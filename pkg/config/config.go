package config

import "time"

type Postgres struct {
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	DB       string `koanf:"db"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	SSLMode  string `koanf:"ssl_mode"`
}

type HttpServer struct {
	Address string `koanf:"address"`
}

type Vault struct {
	// EncryptionKey is the base64 encoded AES key used for credential
	// encryption. 16, 24 or 32 bytes once decoded.
	EncryptionKey string `koanf:"encryption_key"`
}

type Retry struct {
	MaxRetries  int           `koanf:"max_retries"`
	BaseBackoff time.Duration `koanf:"base_backoff"`
	Jitter      time.Duration `koanf:"jitter"`
}

type Webhook struct {
	// SharedSecret is the fallback HMAC secret used when an integration
	// carries no webhook_secret credential of its own.
	SharedSecret string        `koanf:"shared_secret"`
	DedupeWindow time.Duration `koanf:"dedupe_window"`
}

type Risk struct {
	MediumAt   int `koanf:"medium_at"`
	HighAt     int `koanf:"high_at"`
	CriticalAt int `koanf:"critical_at"`
}

type Reasoning struct {
	APIKey  string `koanf:"api_key"`
	Model   string `koanf:"model"`
	BaseURL string `koanf:"base_url"`
}

type Scheduler struct {
	HealthProbeInterval time.Duration `koanf:"health_probe_interval"`
	SyncPollInterval    time.Duration `koanf:"sync_poll_interval"`
	EscalationSLA       time.Duration `koanf:"escalation_sla"`
}

type Config struct {
	Postgres  Postgres   `koanf:"postgres"`
	Http      HttpServer `koanf:"http"`
	Vault     Vault      `koanf:"vault"`
	Retry     Retry      `koanf:"retry"`
	Webhook   Webhook    `koanf:"webhook"`
	Risk      Risk       `koanf:"risk"`
	Reasoning Reasoning  `koanf:"reasoning"`
	Scheduler Scheduler  `koanf:"scheduler"`
}

func Default() Config {
	return Config{
		Postgres: Postgres{
			Host:    "localhost",
			Port:    "5432",
			DB:      "agentgate",
			SSLMode: "disable",
		},
		Http: HttpServer{
			Address: "0.0.0.0:8000",
		},
		Retry: Retry{
			MaxRetries:  3,
			BaseBackoff: 500 * time.Millisecond,
			Jitter:      250 * time.Millisecond,
		},
		Webhook: Webhook{
			DedupeWindow: 15 * time.Minute,
		},
		Risk: Risk{
			MediumAt:   3,
			HighAt:     5,
			CriticalAt: 7,
		},
		Reasoning: Reasoning{
			Model: "gpt-4o",
		},
		Scheduler: Scheduler{
			HealthProbeInterval: 5 * time.Minute,
			SyncPollInterval:    5 * time.Minute,
			EscalationSLA:       2 * time.Hour,
		},
	}
}
