// Package main implements licensectl, a command-line companion to the license
// agent. It drives the same license operations without an LLM in the loop:
//
//	licensectl list-licenses
//	licensectl list-subscriptions
//	licensectl grant -user alice@example.com -subscription notebooklm-enterprise
//	licensectl revoke -user alice@example.com
//	licensectl audit -operation grant_license -limit 20
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"licenseagent/internal/audit"
	"licenseagent/internal/licensing"
	"licenseagent/internal/logging"
)

func main() {
	args := logging.InitLogging(os.Args[1:])
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	cmd, args := args[0], args[1:]
	ctx := context.Background()

	var err error
	switch cmd {
	case "list-licenses":
		err = runListLicenses(ctx, args)
	case "list-subscriptions":
		err = runListSubscriptions(ctx, args)
	case "grant":
		err = runGrant(ctx, args)
	case "revoke":
		err = runRevoke(ctx, args)
	case "audit":
		err = runAudit(ctx, args)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("command failed", "command", cmd, "err", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: licensectl <command> [flags]

commands:
  list-licenses       List user licenses in the user store
  list-subscriptions  List subscriptions with seat usage
  grant               Grant a license (-user, -subscription)
  revoke              Revoke a license (-user)
  audit               Query the local audit trail

common flags:
  -project       Google Cloud project ID (default: $GOOGLE_CLOUD_PROJECT)
  -location      Discovery Engine location (default: $GOOGLE_CLOUD_LOCATION or "global")
  -transport     Wire transport, "rest" or "api" (default: rest)`)
}

// commonFlags registers the flags shared by every remote command.
func commonFlags(fs *flag.FlagSet) (project, location, transport *string) {
	project = fs.String("project", os.Getenv("GOOGLE_CLOUD_PROJECT"), "Google Cloud project ID")
	loc := os.Getenv("GOOGLE_CLOUD_LOCATION")
	if loc == "" {
		loc = "global"
	}
	location = fs.String("location", loc, "Discovery Engine location")
	transport = fs.String("transport", "rest", "wire transport: rest or api")
	return
}

// newRecorder opens the audit store for a mutating command. An empty DSN
// disables auditing: the returned nil recorder is a no-op.
func newRecorder(dsn string) (*audit.Recorder, func(), error) {
	if dsn == "" {
		return nil, func() {}, nil
	}
	store, err := audit.NewStore(dsn)
	if err != nil {
		return nil, nil, err
	}
	sessionID := "licensectl_" + uuid.New().String()[:8]
	return audit.NewRecorder(store, "licensectl", sessionID), func() { store.Close() }, nil
}

// newClient resolves the project number and builds the license client.
func newClient(ctx context.Context, project, location, transport string) (licensing.Client, licensing.ProjectContext, error) {
	if project == "" {
		return nil, licensing.ProjectContext{}, fmt.Errorf("no project: set -project or GOOGLE_CLOUD_PROJECT")
	}
	number, err := licensing.ResolveProjectNumber(ctx, project)
	if err != nil {
		return nil, licensing.ProjectContext{}, fmt.Errorf("resolve project number: %w", err)
	}
	pc := licensing.ProjectContext{ProjectID: project, ProjectNumber: number, Location: location}
	client, err := licensing.NewClient(ctx, pc, licensing.Transport(transport))
	if err != nil {
		return nil, licensing.ProjectContext{}, err
	}
	return client, pc, nil
}

func runListLicenses(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list-licenses", flag.ExitOnError)
	project, location, transport := commonFlags(fs)
	fs.Parse(args)

	client, _, err := newClient(ctx, *project, *location, *transport)
	if err != nil {
		return err
	}
	licenses, err := client.ListLicenses(ctx)
	if err != nil {
		return err
	}
	if len(licenses) == 0 {
		fmt.Println("No user licenses found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tSTATE\tCREATED\tLAST LOGIN")
	for _, lic := range licenses {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			lic.UserPrincipal, lic.State, formatTime(lic.CreateTime), formatTime(lic.LastLoginTime))
	}
	return w.Flush()
}

func runListSubscriptions(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list-subscriptions", flag.ExitOnError)
	project, location, transport := commonFlags(fs)
	fs.Parse(args)

	client, _, err := newClient(ctx, *project, *location, *transport)
	if err != nil {
		return err
	}
	subs, err := client.ListSubscriptions(ctx)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		fmt.Println("No subscriptions found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SUBSCRIPTION\tSEATS\tSTATE\tSTART\tEND\tCONFIG PATH")
	for _, sub := range subs {
		fmt.Fprintf(w, "%s\t%d/%d\t%s\t%s\t%s\t%s\n",
			sub.DisplayName, sub.UsedCount, sub.TotalCount, sub.State,
			sub.StartDate, sub.EndDate, sub.ConfigPath)
	}
	return w.Flush()
}

func runGrant(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("grant", flag.ExitOnError)
	project, location, transport := commonFlags(fs)
	user := fs.String("user", "", "email address of the user to grant to")
	subscription := fs.String("subscription", os.Getenv("SUBSCRIPTION_ID"),
		"subscription display name or full licenseConfigs path")
	db := fs.String("db", os.Getenv("LICENSE_AGENT_AUDIT_DB"),
		"audit store DSN or SQLite path (empty disables auditing)")
	fs.Parse(args)

	if *user == "" {
		return fmt.Errorf("-user is required")
	}
	recorder, closeStore, err := newRecorder(*db)
	if err != nil {
		return err
	}
	defer closeStore()
	client, pc, err := newClient(ctx, *project, *location, *transport)
	if err != nil {
		return err
	}
	configPath, err := pc.LicenseConfigPath(*subscription)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := client.GrantLicense(ctx, *user, configPath)
	recorder.RecordOperation(ctx, "grant_license", *user, configPath, err, time.Since(start))
	if err != nil {
		return err
	}
	fmt.Printf("Granted %s on %s\n", *user, configPath)
	for _, lic := range res.UserLicenses {
		fmt.Printf("  %s: %s\n", lic.UserPrincipal, lic.State)
	}
	return nil
}

func runRevoke(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	project, location, transport := commonFlags(fs)
	user := fs.String("user", "", "email address of the user to revoke from")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	db := fs.String("db", os.Getenv("LICENSE_AGENT_AUDIT_DB"),
		"audit store DSN or SQLite path (empty disables auditing)")
	fs.Parse(args)

	if *user == "" {
		return fmt.Errorf("-user is required")
	}
	if !*yes {
		fmt.Printf("Revoke the license of %s? [y/N] ", *user)
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	recorder, closeStore, err := newRecorder(*db)
	if err != nil {
		return err
	}
	defer closeStore()
	client, _, err := newClient(ctx, *project, *location, *transport)
	if err != nil {
		return err
	}
	start := time.Now()
	_, err = client.RevokeLicense(ctx, *user, "")
	recorder.RecordOperation(ctx, "revoke_license", *user, "", err, time.Since(start))
	if err != nil {
		return err
	}
	fmt.Printf("Revoked license of %s\n", *user)
	return nil
}

func runAudit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dsn := fs.String("db", os.Getenv("LICENSE_AGENT_AUDIT_DB"), "audit store DSN or SQLite path")
	operation := fs.String("operation", "", "filter by operation (grant_license, revoke_license, ...)")
	principal := fs.String("principal", "", "filter by user principal")
	status := fs.String("status", "", "filter by status (success, error)")
	since := fs.Duration("since", 0, "only show records newer than this (e.g. 24h)")
	limit := fs.Int("limit", 50, "maximum number of records")
	fs.Parse(args)

	if *dsn == "" {
		return fmt.Errorf("no audit store: set -db or LICENSE_AGENT_AUDIT_DB")
	}
	store, err := audit.NewStore(*dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := audit.QueryOptions{
		Operation: *operation,
		Principal: *principal,
		Status:    *status,
		Limit:     *limit,
	}
	if *since > 0 {
		opts.Since = time.Now().UTC().Add(-*since)
	}
	records, err := store.Query(ctx, opts)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No audit records found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tOPERATION\tPRINCIPAL\tSTATUS\tMS\tDETAIL")
	for _, rec := range records {
		detail := rec.Error
		if detail == "" {
			detail = rec.LicenseConfig
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			rec.Timestamp.Format("2006-01-02 15:04:05"),
			rec.Operation, rec.Principal, rec.Status, rec.DurationMs, detail)
	}
	return w.Flush()
}

// formatTime renders an RFC 3339 timestamp as YYYY-MM-DD HH:MM:SS, passing
// through anything it cannot parse.
func formatTime(s string) string {
	if s == "" {
		return "-"
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, s); err != nil {
			return s
		}
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
