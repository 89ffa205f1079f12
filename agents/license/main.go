// Package main implements the Gemini Enterprise / NotebookLM Enterprise
// license administration agent. It exposes the four license operations
// (list licenses, list subscriptions, grant, revoke) as LLM tools over the
// A2A protocol.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/google/uuid"
	"google.golang.org/adk/agent/llmagent"

	"licenseagent/agentutil"
	"licenseagent/internal/audit"
	"licenseagent/internal/guard"
	"licenseagent/internal/licensing"
	"licenseagent/prompts"
)

func main() {
	cfg := agentutil.MustLoadConfig("localhost:1203")
	ctx := context.Background()

	// License config paths embed the numeric project number, so resolve it
	// once up front rather than on every grant.
	projectNumber, err := licensing.ResolveProjectNumber(ctx, cfg.Project)
	if err != nil {
		slog.Error("failed to resolve project number", "project", cfg.Project, "err", err)
		os.Exit(1)
	}
	projectCtx = licensing.ProjectContext{
		ProjectID:     cfg.Project,
		ProjectNumber: projectNumber,
		Location:      cfg.Location,
	}
	defaultSubscription = cfg.DefaultSubscription

	svc, err = licensing.NewClient(ctx, projectCtx, licensing.Transport(cfg.Transport))
	if err != nil {
		slog.Error("failed to create license client", "transport", cfg.Transport, "err", err)
		os.Exit(1)
	}

	if cfg.GuardFile != "" {
		guardCfg, err = guard.LoadFile(cfg.GuardFile)
		if err != nil {
			slog.Error("failed to load guardrail config", "file", cfg.GuardFile, "err", err)
			os.Exit(1)
		}
		slog.Info("guardrails enabled", "file", cfg.GuardFile, "rules", len(guardCfg.Rules))
	}

	if cfg.AuditDB != "" {
		store, err := audit.NewStore(cfg.AuditDB)
		if err != nil {
			slog.Error("failed to open audit store", "dsn", cfg.AuditDB, "err", err)
			os.Exit(1)
		}
		defer store.Close()
		sessionID := "licenseagent_" + uuid.New().String()[:8]
		recorder = audit.NewRecorder(store, "license_agent", sessionID)
		slog.Info("auditing enabled", "session", sessionID)
	}

	llmModel, err := agentutil.NewLLM(ctx, cfg)
	if err != nil {
		slog.Error("failed to create LLM model", "err", err)
		os.Exit(1)
	}

	tools, err := createTools()
	if err != nil {
		slog.Error("failed to create tools", "err", err)
		os.Exit(1)
	}

	licenseAgent, err := llmagent.New(llmagent.Config{
		Name:        "license_agent",
		Description: "Manages Gemini Enterprise / NotebookLM Enterprise licenses: lists subscriptions and user licenses, grants seats, and revokes them.",
		Instruction: prompts.License,
		Model:       llmModel,
		Tools:       tools,
	})
	if err != nil {
		slog.Error("failed to create license agent", "err", err)
		os.Exit(1)
	}

	cardOpts := agentutil.CardOptions{
		Version:  "1.0.0",
		Provider: &a2a.AgentProvider{Org: "LicenseAgent"},
		SkillTags: map[string][]string{
			"license_agent":                    {"licenses", "gemini-enterprise", "notebooklm"},
			"license_agent-list_licenses":      {"licenses", "listing"},
			"license_agent-list_subscriptions": {"subscriptions", "usage", "seats"},
			"license_agent-grant_license":      {"licenses", "grant", "provisioning"},
			"license_agent-revoke_license":     {"licenses", "revoke", "deprovisioning"},
		},
		SkillExamples: map[string][]string{
			"license_agent-list_licenses":      {"Who has a license right now?"},
			"license_agent-list_subscriptions": {"How many seats are left on each subscription?"},
			"license_agent-grant_license":      {"Give alice@example.com a NotebookLM license"},
			"license_agent-revoke_license":     {"Remove bob@example.com's license"},
		},
	}

	if err := agentutil.Serve(ctx, licenseAgent, cfg, cardOpts); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
