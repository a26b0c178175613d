package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	RuntimeOllama = "ollama"
	RuntimeOpenAI = "openai"
)

// Config configures the completion gateway server.
type Config struct {
	ListenAddr      string
	RuntimeKind     string
	RuntimeURL      string
	RuntimeProxyURL string
	Model           string
	MaxTokens       int
	Temperature     float64
	RequestTimeout  time.Duration
	HealthTimeout   time.Duration
	ModelsTimeout   time.Duration
	CORSOrigins     []string
	MetricsEnabled  bool
	TelemetryDir    string
	Log             LogConfig
	// A2A
	A2AEnabled bool
	A2APort    int
	AgentName  string
	AgentDesc  string
}

// LogConfig is shared by the server and the chat client.
type LogConfig struct {
	File  string
	Level string
}

// Load reads a .env file if present, then parses os.Args.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse(os.Args[1:])
}

// Parse builds a Config from args with environment variables as defaults.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	var corsOrigins string
	fs.StringVar(&cfg.ListenAddr, "listen-addr", getEnv("LISTEN_ADDR", ":8000"), "Gateway listen address")
	fs.StringVar(&cfg.RuntimeKind, "runtime", getEnv("RUNTIME_KIND", RuntimeOllama), "Model runtime protocol (ollama|openai)")
	fs.StringVar(&cfg.RuntimeURL, "runtime-url", getEnv("LLM_API_ENDPOINT", "http://localhost:11434"), "Model runtime base URL")
	fs.StringVar(&cfg.RuntimeProxyURL, "runtime-proxy-url", getEnv("RUNTIME_PROXY_URL", ""), "HTTP/HTTPS proxy URL for runtime requests")
	fs.StringVar(&cfg.Model, "model", getEnv("LLM_MODEL", "llama2"), "Default model name")
	fs.IntVar(&cfg.MaxTokens, "max-tokens", getEnvInt("MAX_TOKENS", 2048), "Default max tokens to generate")
	fs.Float64Var(&cfg.Temperature, "temperature", getEnvFloat("TEMPERATURE", 0.7), "Default sampling temperature")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", getEnvDuration("REQUEST_TIMEOUT", 120*time.Second), "Runtime round-trip timeout")
	fs.DurationVar(&cfg.HealthTimeout, "health-timeout", getEnvDuration("HEALTH_TIMEOUT", 5*time.Second), "Runtime health check timeout")
	fs.DurationVar(&cfg.ModelsTimeout, "models-timeout", getEnvDuration("MODELS_TIMEOUT", 30*time.Second), "Runtime model listing timeout")
	fs.StringVar(&corsOrigins, "cors-origins", getEnv("CORS_ORIGINS", "*"), "Comma-separated allowed CORS origins")
	fs.BoolVar(&cfg.MetricsEnabled, "metrics", getEnvBool("METRICS_ENABLED", true), "Expose Prometheus metrics on /metrics")
	fs.StringVar(&cfg.TelemetryDir, "telemetry-dir", getEnv("TELEMETRY_DIR", ""), "Directory for trace/metric exports (empty disables)")
	fs.StringVar(&cfg.Log.File, "log-file", getEnv("LOG_FILE", ""), "Rotated log file (empty logs to stderr)")
	fs.StringVar(&cfg.Log.Level, "log-level", getEnv("LOG_LEVEL", "info"), "Log level (debug|info|warn|error)")

	fs.BoolVar(&cfg.A2AEnabled, "a2a", getEnvBool("A2A_ENABLED", false), "Enable A2A server alongside the gateway")
	fs.IntVar(&cfg.A2APort, "a2a-port", getEnvInt("A2A_PORT", 8001), "A2A server listen port")
	fs.StringVar(&cfg.AgentName, "agent-name", getEnv("AGENT_NAME", "edgechat"), "A2A AgentCard name")
	fs.StringVar(&cfg.AgentDesc, "agent-desc", getEnv("AGENT_DESC", "Local LLM assistant exposed via A2A protocol"), "A2A AgentCard description")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.CORSOrigins = splitList(corsOrigins)
	return cfg, nil
}

// Client configures the terminal chat client and its session controller.
type Client struct {
	GatewayURL     string
	ProbeTimeout   time.Duration
	RequestTimeout time.Duration
	Temperature    float64
	MaxTokens      int
	DemoRules      string
	Log            LogConfig
}

// LoadClient reads a .env file if present, then parses os.Args.
func LoadClient() (*Client, error) {
	_ = godotenv.Load()
	return ParseClient(os.Args[1:])
}

// ParseClient builds a Client from args with environment variables as defaults.
func ParseClient(args []string) (*Client, error) {
	cfg := &Client{}
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)

	fs.StringVar(&cfg.GatewayURL, "gateway-url", getEnv("GATEWAY_URL", "http://localhost:8000"), "Completion gateway base URL")
	fs.DurationVar(&cfg.ProbeTimeout, "probe-timeout", getEnvDuration("PROBE_TIMEOUT", 5*time.Second), "Startup health probe timeout")
	fs.DurationVar(&cfg.RequestTimeout, "chat-timeout", getEnvDuration("CHAT_TIMEOUT", 120*time.Second), "Chat completion timeout")
	fs.Float64Var(&cfg.Temperature, "temperature", getEnvFloat("CHAT_TEMPERATURE", 0.7), "Sampling temperature")
	fs.IntVar(&cfg.MaxTokens, "max-tokens", getEnvInt("CHAT_MAX_TOKENS", 512), "Max tokens per reply")
	fs.StringVar(&cfg.DemoRules, "demo-rules", getEnv("DEMO_RULES", ""), "YAML file with demo-mode reply rules")
	fs.StringVar(&cfg.Log.File, "log-file", getEnv("LOG_FILE", "logs/chat.log"), "Rotated log file (empty logs to stderr)")
	fs.StringVar(&cfg.Log.Level, "log-level", getEnv("LOG_LEVEL", "info"), "Log level (debug|info|warn|error)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	switch v {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	d, _ := time.ParseDuration(os.Getenv(key))
	if d <= 0 {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
