// Package agentutil provides the shared surface for building license agents.
// It extracts the boilerplate an agent binary needs: config loading, LLM
// creation, and A2A server startup.
package agentutil

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"google.golang.org/genai"
	"gopkg.in/yaml.v3"

	"google.golang.org/adk/agent"
	adkmodel "google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/server/adka2a"
	"google.golang.org/adk/session"

	"licenseagent/internal/logging"
	"licenseagent/internal/model"
)

// Config holds agent configuration. Values come from an optional YAML file
// (LICENSE_AGENT_CONFIG) overridden by LICENSE_AGENT_* and GOOGLE_CLOUD_*
// environment variables; env always wins.
type Config struct {
	ModelVendor string `yaml:"model_vendor"`
	ModelName   string `yaml:"model_name"`
	APIKey      string `yaml:"api_key"`
	ListenAddr  string `yaml:"listen_addr"`

	// Project is the Google Cloud project ID (text form).
	Project string `yaml:"project"`
	// Location is the Discovery Engine location, defaulting to "global".
	Location string `yaml:"location"`
	// DefaultSubscription is the license config assumed when a grant request
	// names no subscription.
	DefaultSubscription string `yaml:"default_subscription"`

	// Transport selects the Discovery Engine transport: "rest" or "api".
	Transport string `yaml:"transport"`

	// AuditDB is the audit store DSN. Empty disables auditing.
	AuditDB string `yaml:"audit_db"`
	// GuardFile is a guardrail config path. Empty disables guardrails.
	GuardFile string `yaml:"guard_file"`
}

// loadConfigFile reads a YAML config file into cfg. A missing path is not an
// error; a named file that cannot be read or parsed is.
func loadConfigFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// overlayEnv applies environment variables over cfg. Set vars win over file
// values.
func overlayEnv(cfg *Config) {
	envOverride := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envOverride(&cfg.ModelVendor, "LICENSE_AGENT_MODEL_VENDOR")
	envOverride(&cfg.ModelName, "LICENSE_AGENT_MODEL_NAME")
	envOverride(&cfg.APIKey, "LICENSE_AGENT_API_KEY")
	envOverride(&cfg.ListenAddr, "LICENSE_AGENT_ADDR")
	envOverride(&cfg.Transport, "LICENSE_AGENT_TRANSPORT")
	envOverride(&cfg.AuditDB, "LICENSE_AGENT_AUDIT_DB")
	envOverride(&cfg.GuardFile, "LICENSE_AGENT_GUARD_FILE")
	envOverride(&cfg.Project, "GOOGLE_CLOUD_PROJECT")
	envOverride(&cfg.Location, "GOOGLE_CLOUD_LOCATION")
	envOverride(&cfg.DefaultSubscription, "SUBSCRIPTION_ID")
}

// LoadConfig assembles the agent config from LICENSE_AGENT_CONFIG (if set)
// and the environment. defaultAddr is used when no listen address is
// configured.
func LoadConfig(defaultAddr string) (Config, error) {
	var cfg Config
	if err := loadConfigFile(os.Getenv("LICENSE_AGENT_CONFIG"), &cfg); err != nil {
		return Config{}, err
	}
	overlayEnv(&cfg)

	if cfg.ModelVendor == "" || cfg.ModelName == "" || cfg.APIKey == "" {
		return Config{}, fmt.Errorf("missing required configuration: LICENSE_AGENT_MODEL_VENDOR, LICENSE_AGENT_MODEL_NAME, LICENSE_AGENT_API_KEY")
	}
	if cfg.Project == "" {
		return Config{}, fmt.Errorf("missing required configuration: GOOGLE_CLOUD_PROJECT")
	}

	if cfg.Location == "" {
		cfg.Location = "global"
	}
	if cfg.Transport == "" {
		cfg.Transport = "rest"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultAddr
	}
	return cfg, nil
}

// MustLoadConfig is LoadConfig that initialises structured logging first and
// exits the process on error.
func MustLoadConfig(defaultAddr string) Config {
	logging.InitLogging(os.Args[1:])

	cfg, err := LoadConfig(defaultAddr)
	if err != nil {
		slog.Error("configuration error", "err", err)
		os.Exit(1)
	}
	return cfg
}

// NewLLM creates an LLM model based on Config.ModelVendor (gemini or anthropic).
func NewLLM(ctx context.Context, cfg Config) (adkmodel.LLM, error) {
	switch strings.ToLower(cfg.ModelVendor) {
	case "google", "gemini":
		llm, err := gemini.NewModel(ctx, cfg.ModelName, &genai.ClientConfig{APIKey: cfg.APIKey})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini model: %v", err)
		}
		slog.Info("using model", "vendor", "gemini", "model", cfg.ModelName)
		return llm, nil

	case "anthropic":
		llm, err := model.NewAnthropicModel(ctx, cfg.ModelName, cfg.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create Anthropic model: %v", err)
		}
		slog.Info("using model", "vendor", "anthropic", "model", cfg.ModelName)
		return llm, nil

	default:
		return nil, fmt.Errorf("unknown model vendor: %s (supported: google, gemini, anthropic)", cfg.ModelVendor)
	}
}

// CardOptions allows agents to customize the AgentCard beyond the defaults
// that Serve derives automatically from the ADK agent.
type CardOptions struct {
	// Version is the agent's version string (e.g., "1.0.0").
	Version string

	// DocumentationURL points to the agent's documentation.
	DocumentationURL string

	// Provider describes the organization providing this agent.
	Provider *a2a.AgentProvider

	// SkillTags maps a skill ID to additional tags to merge onto the
	// auto-generated skills. Skill IDs follow the ADK pattern:
	// "agentName" for the model skill, "agentName-toolName" for tool skills.
	SkillTags map[string][]string

	// SkillExamples maps a skill ID to example prompts/scenarios.
	SkillExamples map[string][]string
}

// applyCardOptions merges optional metadata onto an AgentCard.
func applyCardOptions(card *a2a.AgentCard, opts CardOptions) {
	if opts.Version != "" {
		card.Version = opts.Version
	}
	if opts.DocumentationURL != "" {
		card.DocumentationURL = opts.DocumentationURL
	}
	if opts.Provider != nil {
		card.Provider = opts.Provider
	}
	for i := range card.Skills {
		skill := &card.Skills[i]
		if tags, ok := opts.SkillTags[skill.ID]; ok {
			skill.Tags = append(skill.Tags, tags...)
		}
		if examples, ok := opts.SkillExamples[skill.ID]; ok {
			skill.Examples = examples
		}
	}
}

// Serve starts an A2A server for the given agent on cfg.ListenAddr.
// It sets up the agent card, JSON-RPC handler, in-memory session service, and blocks.
// An optional CardOptions can be passed to enrich the agent card with additional metadata.
func Serve(ctx context.Context, a agent.Agent, cfg Config, opts ...CardOptions) error {
	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %v", cfg.ListenAddr, err)
	}

	baseURL := &url.URL{Scheme: "http", Host: listener.Addr().String()}

	agentPath := "/invoke"
	agentCard := &a2a.AgentCard{
		Name:               a.Name(),
		Description:        a.Description(),
		Skills:             adka2a.BuildAgentSkills(a),
		PreferredTransport: a2a.TransportProtocolJSONRPC,
		URL:                baseURL.JoinPath(agentPath).String(),
		Capabilities:       a2a.AgentCapabilities{Streaming: true},
	}

	if len(opts) > 0 {
		applyCardOptions(agentCard, opts[0])
	}

	mux := http.NewServeMux()
	mux.Handle(a2asrv.WellKnownAgentCardPath, a2asrv.NewStaticAgentCardHandler(agentCard))

	executor := adka2a.NewExecutor(adka2a.ExecutorConfig{
		RunnerConfig: runner.Config{
			AppName:        a.Name(),
			Agent:          a,
			SessionService: session.InMemoryService(),
		},
	})
	requestHandler := a2asrv.NewHandler(executor)
	mux.Handle(agentPath, a2asrv.NewJSONRPCHandler(requestHandler))

	slog.Info("starting A2A server",
		"agent", a.Name(),
		"url", baseURL.String(),
		"card", baseURL.String()+"/.well-known/agent-card.json",
	)

	return http.Serve(listener, mux)
}
