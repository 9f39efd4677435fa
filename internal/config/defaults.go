package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Channels: ChannelsConfig{
			Messenger: MessengerConfig{
				Enabled:     false,
				WebhookPath: "/webhook",
			},
			Telegram: TelegramConfig{
				Enabled: false,
			},
			CLI: CLIConfig{
				Enabled: true,
			},
		},
		Store: StoreConfig{
			Backend:              "memory",
			DBPath:               "~/.polabot/contexts.db",
			RetentionDays:        30,
			SweepIntervalMinutes: 60,
		},
		Pola: PolaConfig{
			TimeoutSeconds: 30,
		},
		Barcode: BarcodeConfig{
			Endpoint:       "http://localhost:9444",
			TimeoutSeconds: 30,
		},
		Engine: EngineConfig{
			MaxConcurrentEvents: 5,
			BusBufferSize:       100,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
	}
}
