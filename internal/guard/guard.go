// Package guard evaluates local guardrails for license operations. It lets an
// administrator constrain which principals the agent may grant to or revoke
// from before anything reaches the remote service. With no configuration
// loaded every operation is allowed, matching the service's own behavior.
package guard

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Operation names a guarded license operation.
type Operation string

const (
	OpGrant  Operation = "grant"
	OpRevoke Operation = "revoke"
)

// Effect is the outcome of a rule evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Config is the top-level guardrail configuration.
type Config struct {
	Version string `yaml:"version"`

	// AllowedDomains restricts grant targets to these email domains.
	// Empty means any domain.
	AllowedDomains []string `yaml:"allowed_domains,omitempty"`

	// ProtectedPrincipals may never have their license revoked.
	ProtectedPrincipals []string `yaml:"protected_principals,omitempty"`

	// Rules are evaluated in order; the first rule matching the operation
	// decides. No match means allow.
	Rules []Rule `yaml:"rules,omitempty"`
}

// Rule maps one or more operations to an effect.
type Rule struct {
	Operation OperationMatcher `yaml:"operation"`
	Effect    Effect           `yaml:"effect"`
	Message   string           `yaml:"message,omitempty"`
}

// OperationMatcher accepts either a single operation or a list in YAML.
type OperationMatcher []Operation

func (m *OperationMatcher) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		*m = []Operation{Operation(single)}
		return nil
	}

	var list []string
	if err := unmarshal(&list); err != nil {
		return err
	}
	*m = make([]Operation, len(list))
	for i, s := range list {
		(*m)[i] = Operation(s)
	}
	return nil
}

// Matches reports whether op is covered by this matcher.
func (m OperationMatcher) Matches(op Operation) bool {
	for _, o := range m {
		if o == op {
			return true
		}
	}
	return false
}

// DeniedError reports a guardrail denial. The message is safe to relay to the
// dialogue layer verbatim.
type DeniedError struct {
	Message string
}

func (e *DeniedError) Error() string {
	return "denied by guardrail: " + e.Message
}

// IsDenied reports whether err is a guardrail denial.
func IsDenied(err error) bool {
	var d *DeniedError
	return errors.As(err, &d)
}

// LoadFile loads guardrail configuration from a YAML file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read guard file: %w", err)
	}
	return Load(data)
}

// Load parses guardrail configuration from YAML data. Environment variables
// in the document are expanded before parsing.
func Load(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse guard YAML: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate guard config: %w", err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Version == "" {
		cfg.Version = "1"
	}
	for i, r := range cfg.Rules {
		if len(r.Operation) == 0 {
			return fmt.Errorf("rule %d: operation is required", i)
		}
		for _, op := range r.Operation {
			if op != OpGrant && op != OpRevoke {
				return fmt.Errorf("rule %d: unknown operation %q", i, op)
			}
		}
		if r.Effect != EffectAllow && r.Effect != EffectDeny {
			return fmt.Errorf("rule %d: invalid effect %q", i, r.Effect)
		}
	}
	return nil
}

// Check evaluates the guardrails for an operation on a principal. A nil
// Config allows everything.
func (c *Config) Check(op Operation, principal string) error {
	if c == nil {
		return nil
	}

	if op == OpGrant && len(c.AllowedDomains) > 0 {
		if !domainAllowed(principal, c.AllowedDomains) {
			return &DeniedError{Message: fmt.Sprintf("principal %q is outside the allowed domains", principal)}
		}
	}

	if op == OpRevoke {
		for _, p := range c.ProtectedPrincipals {
			if strings.EqualFold(p, principal) {
				return &DeniedError{Message: fmt.Sprintf("principal %q is protected from revocation", principal)}
			}
		}
	}

	for _, r := range c.Rules {
		if !r.Operation.Matches(op) {
			continue
		}
		if r.Effect == EffectDeny {
			msg := r.Message
			if msg == "" {
				msg = fmt.Sprintf("operation %q is disabled by rule", op)
			}
			return &DeniedError{Message: msg}
		}
		return nil
	}
	return nil
}

func domainAllowed(principal string, domains []string) bool {
	at := strings.LastIndex(principal, "@")
	if at < 0 {
		return false
	}
	domain := principal[at+1:]
	for _, d := range domains {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}
