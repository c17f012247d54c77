package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			DefaultProvider:       "ollama",
			DefaultTenant:         "default",
			MaxConcurrentMessages: 5,
		},
		Providers: map[string]ProviderConfig{
			"ollama": {
				Enabled: true,
				Type:    "ollama",
				APIBase: "http://localhost:11434",
				Model:   "llama3.1:8b",
			},
		},
		Routing: RoutingConfig{
			Strategy:          "rules",
			StrongScore:       0.5,
			ModerateScore:     0.3,
			WeakScore:         0.1,
			MinAgentScore:     0.05,
			EscalateBelow:     0.1,
			MaxAlternatives:   5,
			CandidateLimit:    10,
			LLMTimeoutSeconds: 30,
		},
		Conversation: ConversationConfig{
			RecentTurnWindow: 10,
		},
		Storage: StorageConfig{
			DBPath: "~/.agenthub/agenthub.db",
		},
		Channels: ChannelsConfig{
			Web: WebConfig{
				Enabled: true,
				Host:    "127.0.0.1",
				Port:    8080,
			},
			CLI: CLIConfig{
				Enabled: true,
			},
			Telegram: TelegramConfig{
				Enabled: false,
			},
		},
		Knowledge: KnowledgeConfig{
			Enabled:      false,
			ChunkSize:    512,
			ChunkOverlap: 50,
			SearchTopK:   3,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Agents: AgentsConfig{
			RosterDir: "~/.agenthub/agents",
		},
	}
}
