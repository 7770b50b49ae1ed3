package config

import "path/filepath"

// Defaults returns the default configuration. Secrets are referenced as
// ${ENV} placeholders so a freshly generated config file never embeds them.
func Defaults() *Config {
	dir := DefaultConfigDir()
	return &Config{
		General: GeneralConfig{
			LogLevel:            "info",
			PollIntervalSeconds: 5,
		},
		Source: SourceConfig{
			Provider:     "imessage",
			MessageLimit: 50,
			ChatDBPath:   "~/Library/Messages/chat.db",
			Telegram: TelegramConfig{
				Token: "${TELEGRAM_BOT_TOKEN}",
			},
		},
		Gemini: GeminiConfig{
			APIKey:            "${GEMINI_API_KEY}",
			Model:             "gemini-2.5-flash",
			MaxRetries:        3,
			RetryDelaySeconds: 20,
		},
		Store: StoreConfig{
			DBPath: filepath.Join(dir, "transactions.db"),
		},
		Chat: ChatConfig{
			BackendURL: "http://localhost:5000",
			UserID:     "aman",
		},
		Ledger: LedgerConfig{
			URL: "http://localhost:5000/api/transactions",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 3456,
		},
	}
}
