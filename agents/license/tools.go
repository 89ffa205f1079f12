package main

import (
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"licenseagent/internal/audit"
	"licenseagent/internal/guard"
	"licenseagent/internal/licensing"
)

// svc is the license service client. Set during initialization; overridden in
// tests with a fake.
var svc licensing.Client

// projectCtx scopes every operation to one project/location/user store.
var projectCtx licensing.ProjectContext

// defaultSubscription is used when a grant request names no subscription.
var defaultSubscription string

// guardCfg holds the optional guardrail config. Nil allows everything.
var guardCfg *guard.Config

// recorder writes the audit trail. Nil disables auditing.
var recorder *audit.Recorder

// ListLicensesArgs defines arguments for the list_licenses tool.
type ListLicensesArgs struct{}

// ListLicensesResult is the list_licenses tool output.
type ListLicensesResult struct {
	Status   string                        `json:"status"`
	Count    int                           `json:"count"`
	Licenses []licensing.LicenseAssignment `json:"licenses,omitempty"`
	Error    string                        `json:"error,omitempty"`
}

// listLicensesTool returns every user license in the configured user store.
// Errors are returned in the result body rather than as Go errors so the
// model always sees what went wrong and can relay it.
func listLicensesTool(ctx tool.Context, args ListLicensesArgs) (ListLicensesResult, error) {
	licenses, err := svc.ListLicenses(ctx)
	if err != nil {
		slog.Error("list_licenses failed", "err", err)
		return ListLicensesResult{Status: "error", Error: err.Error()}, nil
	}
	return ListLicensesResult{Status: "success", Count: len(licenses), Licenses: licenses}, nil
}

// ListSubscriptionsArgs defines arguments for the list_subscriptions tool.
type ListSubscriptionsArgs struct{}

// ListSubscriptionsResult is the list_subscriptions tool output.
type ListSubscriptionsResult struct {
	Status        string                             `json:"status"`
	Subscriptions []licensing.SubscriptionDescriptor `json:"subscriptions,omitempty"`
	Error         string                             `json:"error,omitempty"`
}

func listSubscriptionsTool(ctx tool.Context, args ListSubscriptionsArgs) (ListSubscriptionsResult, error) {
	subs, err := svc.ListSubscriptions(ctx)
	if err != nil {
		slog.Error("list_subscriptions failed", "err", err)
		return ListSubscriptionsResult{Status: "error", Error: err.Error()}, nil
	}
	return ListSubscriptionsResult{Status: "success", Subscriptions: subs}, nil
}

// GrantLicenseArgs defines arguments for the grant_license tool.
type GrantLicenseArgs struct {
	UserID            string `json:"user_id" jsonschema:"Email address of the user to grant the license to."`
	LicenseConfigPath string `json:"license_config_path,omitempty" jsonschema:"The config_path of the chosen subscription, as returned by list_subscriptions. A bare subscription display name is also accepted. If empty, the configured default subscription is used."`
}

// MutationResult is the shared output shape of grant_license and
// revoke_license.
type MutationResult struct {
	Status        string                        `json:"status"`
	Message       string                        `json:"message,omitempty"`
	LicenseConfig string                        `json:"license_config,omitempty"`
	UserLicenses  []licensing.LicenseAssignment `json:"user_licenses,omitempty"`
	Error         string                        `json:"error,omitempty"`
}

func grantLicenseTool(ctx tool.Context, args GrantLicenseArgs) (MutationResult, error) {
	start := time.Now()

	target := args.LicenseConfigPath
	if target == "" {
		target = defaultSubscription
	}
	configPath, err := projectCtx.LicenseConfigPath(target)
	if err != nil {
		return MutationResult{Status: "error", Error: err.Error()}, nil
	}

	if err := guardCfg.Check(guard.OpGrant, args.UserID); err != nil {
		slog.Warn("grant denied by guardrail", "user", args.UserID, "err", err)
		recorder.RecordOperation(ctx, "grant_license", args.UserID, configPath, err, time.Since(start))
		return MutationResult{Status: "denied", Error: err.Error()}, nil
	}

	res, err := svc.GrantLicense(ctx, args.UserID, configPath)
	recorder.RecordOperation(ctx, "grant_license", args.UserID, configPath, err, time.Since(start))
	if err != nil {
		slog.Error("grant_license failed", "user", args.UserID, "config", configPath, "err", err)
		return MutationResult{Status: "error", LicenseConfig: configPath, Error: err.Error()}, nil
	}

	slog.Info("license granted", "user", args.UserID, "config", configPath)
	return MutationResult{
		Status:        "success",
		Message:       fmt.Sprintf("Granted license to %s.", args.UserID),
		LicenseConfig: configPath,
		UserLicenses:  res.UserLicenses,
	}, nil
}

// RevokeLicenseArgs defines arguments for the revoke_license tool.
type RevokeLicenseArgs struct {
	UserID            string `json:"user_id" jsonschema:"Email address of the user whose license should be revoked."`
	LicenseConfigPath string `json:"license_config_path,omitempty" jsonschema:"Optional, accepted for symmetry with grant_license. The service infers the subscription from the user's current assignment, so this never changes what is revoked."`
}

func revokeLicenseTool(ctx tool.Context, args RevokeLicenseArgs) (MutationResult, error) {
	start := time.Now()

	if err := guardCfg.Check(guard.OpRevoke, args.UserID); err != nil {
		slog.Warn("revoke denied by guardrail", "user", args.UserID, "err", err)
		recorder.RecordOperation(ctx, "revoke_license", args.UserID, "", err, time.Since(start))
		return MutationResult{Status: "denied", Error: err.Error()}, nil
	}

	// A license config may be supplied for symmetry with grant, but the
	// transports never put it on the wire: the service infers the
	// subscription from the user's current assignment.
	res, err := svc.RevokeLicense(ctx, args.UserID, args.LicenseConfigPath)
	recorder.RecordOperation(ctx, "revoke_license", args.UserID, args.LicenseConfigPath, err, time.Since(start))
	if err != nil {
		slog.Error("revoke_license failed", "user", args.UserID, "err", err)
		return MutationResult{Status: "error", Error: err.Error()}, nil
	}

	slog.Info("license revoked", "user", args.UserID)
	return MutationResult{
		Status:       "success",
		Message:      fmt.Sprintf("Revoked license from %s.", args.UserID),
		UserLicenses: res.UserLicenses,
	}, nil
}

func createTools() ([]tool.Tool, error) {
	listLicensesToolDef, err := functiontool.New(functiontool.Config{
		Name:        "list_licenses",
		Description: "List all user licenses in the user store, including each user's principal, assignment state, creation time, and last login time.",
	}, listLicensesTool)
	if err != nil {
		return nil, err
	}

	listSubscriptionsToolDef, err := functiontool.New(functiontool.Config{
		Name:        "list_subscriptions",
		Description: "List all available subscriptions with their display name, config_path, seat usage (used/total), state, and start/end dates. Call this before granting a license to find the config_path to use.",
	}, listSubscriptionsTool)
	if err != nil {
		return nil, err
	}

	grantLicenseToolDef, err := functiontool.New(functiontool.Config{
		Name:        "grant_license",
		Description: "Grant a license to a user. Requires the user's email and the license_config_path of the chosen subscription (from list_subscriptions).",
	}, grantLicenseTool)
	if err != nil {
		return nil, err
	}

	revokeLicenseToolDef, err := functiontool.New(functiontool.Config{
		Name:        "revoke_license",
		Description: "Revoke a user's license. Requires the user's email; a license_config_path is accepted but optional, since the subscription is inferred from the user's current assignment.",
	}, revokeLicenseTool)
	if err != nil {
		return nil, err
	}

	return []tool.Tool{
		listLicensesToolDef,
		listSubscriptionsToolDef,
		grantLicenseToolDef,
		revokeLicenseToolDef,
	}, nil
}
