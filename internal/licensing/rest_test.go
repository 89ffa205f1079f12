package licensing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testProject() ProjectContext {
	return ProjectContext{
		ProjectID:     "my-project",
		ProjectNumber: 12345,
		Location:      "global",
	}
}

// newTestClient wires a RESTClient to an httptest server with a fast poll.
func newTestClient(t *testing.T, handler http.Handler) *RESTClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewRESTClientWithHTTP(testProject(), srv.URL, srv.Client())
	c.pollInterval = time.Millisecond
	return c
}

func doneOperation() operationJSON {
	return operationJSON{Name: "projects/12345/operations/op-1", Done: true}
}

func TestGrantPayloadNestsLicenseConfigInUserObject(t *testing.T) {
	var captured map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/userLicenses:batchUpdate") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		json.NewEncoder(w).Encode(doneOperation())
	}))

	path := "projects/12345/locations/global/licenseConfigs/my-subscription"
	if _, err := c.GrantLicense(context.Background(), "alice@example.com", path); err != nil {
		t.Fatalf("GrantLicense: %v", err)
	}

	// Never a request-level sibling field.
	if _, ok := captured["licenseConfig"]; ok {
		t.Error("licenseConfig must not appear at the request level")
	}

	inline, ok := captured["inlineSource"].(map[string]any)
	if !ok {
		t.Fatalf("missing inlineSource in payload: %v", captured)
	}
	licenses, ok := inline["userLicenses"].([]any)
	if !ok || len(licenses) != 1 {
		t.Fatalf("want exactly one user license, got %v", inline["userLicenses"])
	}
	user := licenses[0].(map[string]any)
	if user["userPrincipal"] != "alice@example.com" {
		t.Errorf("userPrincipal = %v, want alice@example.com", user["userPrincipal"])
	}
	if user["licenseConfig"] != path {
		t.Errorf("licenseConfig = %v, want %q nested in the user license object", user["licenseConfig"], path)
	}
	if captured["deleteUnassignedUserLicenses"] != false {
		t.Errorf("deleteUnassignedUserLicenses = %v, want false", captured["deleteUnassignedUserLicenses"])
	}
}

func TestRevokePayloadOmitsLicenseConfig(t *testing.T) {
	paths := []string{
		"projects/12345/locations/global/licenseConfigs/my-subscription",
		"projects/67890/locations/eu/licenseConfigs/other",
		"",
	}

	for _, path := range paths {
		var raw []byte
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ = io.ReadAll(r.Body)
			json.NewEncoder(w).Encode(doneOperation())
		}))

		if _, err := c.RevokeLicense(context.Background(), "alice@example.com", path); err != nil {
			t.Fatalf("RevokeLicense(path=%q): %v", path, err)
		}

		// The supplied path must never reach the wire, in any position.
		if strings.Contains(string(raw), "licenseConfig") {
			t.Errorf("revoke payload for path %q contains a licenseConfig reference: %s", path, raw)
		}

		var captured map[string]any
		if err := json.Unmarshal(raw, &captured); err != nil {
			t.Fatalf("unmarshal captured body: %v", err)
		}
		if captured["deleteUnassignedUserLicenses"] != true {
			t.Errorf("deleteUnassignedUserLicenses = %v, want true", captured["deleteUnassignedUserLicenses"])
		}
		inline := captured["inlineSource"].(map[string]any)
		licenses := inline["userLicenses"].([]any)
		if len(licenses) != 1 {
			t.Fatalf("want exactly one user license, got %d", len(licenses))
		}
		if up := licenses[0].(map[string]any)["userPrincipal"]; up != "alice@example.com" {
			t.Errorf("userPrincipal = %v, want alice@example.com", up)
		}
	}
}

func TestGrantValidation(t *testing.T) {
	calls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(doneOperation())
	}))

	tests := []struct {
		name   string
		userID string
		path   string
	}{
		{"empty user", "", "projects/12345/locations/global/licenseConfigs/sub"},
		{"empty path", "alice@example.com", ""},
		{"bare display name", "alice@example.com", "my-subscription"},
		{"truncated path", "alice@example.com", "projects/12345/locations/global"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.GrantLicense(context.Background(), tt.userID, tt.path)
			var valErr *ValidationError
			if !errors.As(err, &valErr) {
				t.Errorf("GrantLicense(%q, %q) error = %v, want *ValidationError", tt.userID, tt.path, err)
			}
		})
	}

	if calls != 0 {
		t.Errorf("validation failures must not reach the remote service; got %d calls", calls)
	}
}

func TestGrantSurfacesRemoteError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"code":409,"message":"No licenses available for LicenseConfig."}}`))
	}))

	_, err := c.GrantLicense(context.Background(), "alice@example.com",
		"projects/12345/locations/global/licenseConfigs/my-subscription")
	var remoteErr *RemoteServiceError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("error = %T %v, want *RemoteServiceError", err, err)
	}
	if remoteErr.StatusCode != http.StatusConflict {
		t.Errorf("StatusCode = %d, want 409", remoteErr.StatusCode)
	}
	if remoteErr.Message != "No licenses available for LicenseConfig." {
		t.Errorf("Message = %q, want remote text unmodified", remoteErr.Message)
	}
}

func TestBatchUpdatePollsUntilDone(t *testing.T) {
	polls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			json.NewEncoder(w).Encode(operationJSON{Name: "projects/12345/operations/op-7"})
		case strings.HasSuffix(r.URL.Path, "/operations/op-7"):
			polls++
			op := operationJSON{Name: "projects/12345/operations/op-7", Done: polls >= 2}
			json.NewEncoder(w).Encode(op)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))

	if _, err := c.GrantLicense(context.Background(), "alice@example.com",
		"projects/12345/locations/global/licenseConfigs/my-subscription"); err != nil {
		t.Fatalf("GrantLicense: %v", err)
	}
	if polls != 2 {
		t.Errorf("polled %d times, want 2", polls)
	}
}

func TestListSubscriptions(t *testing.T) {
	const (
		cfgA = "projects/12345/locations/global/licenseConfigs/my-subscription"
		cfgB = "projects/12345/locations/global/licenseConfigs/notebooklm-pro"
	)

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Goog-User-Project") != "my-project" {
			t.Errorf("X-Goog-User-Project = %q, want my-project", r.Header.Get("X-Goog-User-Project"))
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/licenseConfigsUsageStats"):
			w.Write([]byte(`{"licenseConfigUsageStats":[
				{"licenseConfig":"` + cfgA + `","usedLicenseCount":"3"},
				{"licenseConfig":"` + cfgB + `","usedLicenseCount":"0"}
			]}`))
		case strings.HasSuffix(r.URL.Path, "/my-subscription"):
			w.Write([]byte(`{"name":"` + cfgA + `","licenseCount":"10","state":"ACTIVE",
				"startDate":{"year":2025,"month":1,"day":15},"endDate":{"year":2026,"month":1,"day":14}}`))
		case strings.HasSuffix(r.URL.Path, "/notebooklm-pro"):
			w.Write([]byte(`{"name":"` + cfgB + `","licenseCount":"5","state":"ACTIVE"}`))
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
		}
	}))

	subs, err := c.ListSubscriptions(context.Background())
	if err != nil {
		t.Fatalf("ListSubscriptions: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("got %d subscriptions, want 2", len(subs))
	}

	// Remote response order is preserved.
	if subs[0].DisplayName != "my-subscription" || subs[1].DisplayName != "notebooklm-pro" {
		t.Errorf("order not preserved: %q, %q", subs[0].DisplayName, subs[1].DisplayName)
	}

	first := subs[0]
	if first.ConfigPath != cfgA {
		t.Errorf("ConfigPath = %q, want %q", first.ConfigPath, cfgA)
	}
	if first.UsedCount != 3 || first.TotalCount != 10 {
		t.Errorf("counts = %d/%d, want 3/10", first.UsedCount, first.TotalCount)
	}
	if first.State != "ACTIVE" {
		t.Errorf("State = %q, want ACTIVE", first.State)
	}
	if first.StartDate != "2025-01-15" || first.EndDate != "2026-01-14" {
		t.Errorf("dates = %q..%q, want 2025-01-15..2026-01-14", first.StartDate, first.EndDate)
	}

	// A listed config path round-trips through the resolver unchanged.
	for _, sub := range subs {
		resolved, err := testProject().LicenseConfigPath(sub.ConfigPath)
		if err != nil {
			t.Fatalf("resolving listed path %q: %v", sub.ConfigPath, err)
		}
		if resolved != sub.ConfigPath {
			t.Errorf("resolver changed listed path: %q -> %q", sub.ConfigPath, resolved)
		}
	}
}

func TestListSubscriptionsSkipsFailedDetail(t *testing.T) {
	const (
		cfgA = "projects/12345/locations/global/licenseConfigs/broken"
		cfgB = "projects/12345/locations/global/licenseConfigs/healthy"
	)

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/licenseConfigsUsageStats"):
			w.Write([]byte(`{"licenseConfigUsageStats":[
				{"licenseConfig":"` + cfgA + `","usedLicenseCount":"1"},
				{"licenseConfig":"` + cfgB + `","usedLicenseCount":"2"}
			]}`))
		case strings.HasSuffix(r.URL.Path, "/broken"):
			http.Error(w, `{"error":{"message":"internal"}}`, http.StatusInternalServerError)
		case strings.HasSuffix(r.URL.Path, "/healthy"):
			w.Write([]byte(`{"licenseCount":"4","state":"ACTIVE"}`))
		}
	}))

	subs, err := c.ListSubscriptions(context.Background())
	if err != nil {
		t.Fatalf("ListSubscriptions: %v", err)
	}
	if len(subs) != 1 || subs[0].DisplayName != "healthy" {
		t.Errorf("got %v, want only the healthy subscription", subs)
	}
}

func TestListSubscriptionsDefaultsStateToUnknown(t *testing.T) {
	const cfg = "projects/12345/locations/global/licenseConfigs/stateless"

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/licenseConfigsUsageStats"):
			w.Write([]byte(`{"licenseConfigUsageStats":[
				{"licenseConfig":"` + cfg + `","usedLicenseCount":"2"}
			]}`))
		case strings.HasSuffix(r.URL.Path, "/stateless"):
			// Detail payload with no state field.
			w.Write([]byte(`{"name":"` + cfg + `","licenseCount":"7"}`))
		}
	}))

	subs, err := c.ListSubscriptions(context.Background())
	if err != nil {
		t.Fatalf("ListSubscriptions: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("got %d subscriptions, want 1", len(subs))
	}
	if subs[0].State != "Unknown" {
		t.Errorf("State = %q, want Unknown when the detail payload omits it", subs[0].State)
	}
}

func TestListSubscriptionsStatsFailureIsFatal(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"permission denied"}}`, http.StatusForbidden)
	}))

	_, err := c.ListSubscriptions(context.Background())
	var remoteErr *RemoteServiceError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("error = %T %v, want *RemoteServiceError", err, err)
	}
	if remoteErr.Message != "permission denied" {
		t.Errorf("Message = %q, want remote text unmodified", remoteErr.Message)
	}
}

func TestListLicensesFollowsPageTokens(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageToken") == "" {
			w.Write([]byte(`{"userLicenses":[
				{"userPrincipal":"alice@example.com","licenseAssignmentState":"ASSIGNED",
				 "licenseConfig":"projects/12345/locations/global/licenseConfigs/my-subscription"}
			],"nextPageToken":"page-2"}`))
			return
		}
		w.Write([]byte(`{"userLicenses":[
			{"userPrincipal":"bob@example.com","licenseAssignmentState":"NO_LICENSE"}
		]}`))
	}))

	licenses, err := c.ListLicenses(context.Background())
	if err != nil {
		t.Fatalf("ListLicenses: %v", err)
	}
	if len(licenses) != 2 {
		t.Fatalf("got %d licenses, want 2", len(licenses))
	}
	if licenses[0].UserPrincipal != "alice@example.com" || licenses[1].UserPrincipal != "bob@example.com" {
		t.Errorf("order not preserved: %v", licenses)
	}
	if licenses[0].State != "ASSIGNED" {
		t.Errorf("State = %q, want ASSIGNED", licenses[0].State)
	}
}

func TestListLicensesMalformedPayload(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"userLicenses": not json`))
	}))

	_, err := c.ListLicenses(context.Background())
	var remoteErr *RemoteServiceError
	if !errors.As(err, &remoteErr) {
		t.Errorf("error = %T %v, want *RemoteServiceError", err, err)
	}
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		location string
		want     string
	}{
		{"global", "https://global-discoveryengine.googleapis.com"},
		{"eu", "https://eu-discoveryengine.googleapis.com"},
		{"", "https://global-discoveryengine.googleapis.com"},
	}
	for _, tt := range tests {
		if got := Endpoint(tt.location); got != tt.want {
			t.Errorf("Endpoint(%q) = %q, want %q", tt.location, got, tt.want)
		}
	}
}
