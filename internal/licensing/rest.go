package licensing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2/google"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Endpoint returns the Discovery Engine REST endpoint for a location,
// e.g. https://global-discoveryengine.googleapis.com for "global".
func Endpoint(location string) string {
	if location == "" {
		location = "global"
	}
	return fmt.Sprintf("https://%s-discoveryengine.googleapis.com", location)
}

// RESTClient talks to the Discovery Engine v1 REST surface directly with an
// Application Default Credentials session. It exists because the generated
// client cannot always be pinned to a version compatible with the agent
// framework; callers reach it only through the Client interface, so the two
// paths stay interchangeable.
type RESTClient struct {
	project ProjectContext
	base    string
	hc      *http.Client

	// pollInterval paces long-running operation polls. Tests shorten it.
	pollInterval time.Duration
}

// NewRESTClient creates a REST client authenticated via Application Default
// Credentials.
func NewRESTClient(ctx context.Context, project ProjectContext) (*RESTClient, error) {
	hc, err := google.DefaultClient(ctx, cloudPlatformScope)
	if err != nil {
		return nil, configErrorf("obtain default credentials: %v", err)
	}
	return NewRESTClientWithHTTP(project, Endpoint(project.Location), hc), nil
}

// NewRESTClientWithHTTP creates a REST client with an explicit base URL and
// HTTP client. Used by tests and by callers that manage credentials
// themselves.
func NewRESTClientWithHTTP(project ProjectContext, base string, hc *http.Client) *RESTClient {
	return &RESTClient{
		project:      project,
		base:         base,
		hc:           hc,
		pollInterval: 2 * time.Second,
	}
}

// --- wire shapes ---

type userLicenseJSON struct {
	UserPrincipal          string `json:"userPrincipal"`
	UserProfile            string `json:"userProfile,omitempty"`
	LicenseAssignmentState string `json:"licenseAssignmentState,omitempty"`
	LicenseConfig          string `json:"licenseConfig,omitempty"`
	CreateTime             string `json:"createTime,omitempty"`
	UpdateTime             string `json:"updateTime,omitempty"`
	LastLoginTime          string `json:"lastLoginTime,omitempty"`
}

type inlineSourceJSON struct {
	UserLicenses []userLicenseJSON `json:"userLicenses"`
}

type batchUpdateJSON struct {
	InlineSource                 inlineSourceJSON `json:"inlineSource"`
	DeleteUnassignedUserLicenses bool             `json:"deleteUnassignedUserLicenses"`
}

// grantBody shapes the batch update payload for a grant. The license config
// must sit inside the per-user license object: the service rejects it as a
// request-level field.
func grantBody(userID, licenseConfigPath string) batchUpdateJSON {
	return batchUpdateJSON{
		InlineSource: inlineSourceJSON{
			UserLicenses: []userLicenseJSON{{
				UserPrincipal: userID,
				LicenseConfig: licenseConfigPath,
			}},
		},
		DeleteUnassignedUserLicenses: false,
	}
}

// revokeBody shapes the batch update payload for a revoke. No license config
// reference is sent; the service infers the subscription from the user's
// current assignment.
func revokeBody(userID string) batchUpdateJSON {
	return batchUpdateJSON{
		InlineSource: inlineSourceJSON{
			UserLicenses: []userLicenseJSON{{UserPrincipal: userID}},
		},
		DeleteUnassignedUserLicenses: true,
	}
}

type dateJSON struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

func (d dateJSON) String() string {
	if d.Year == 0 {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

type licenseConfigJSON struct {
	Name         string   `json:"name"`
	LicenseCount string   `json:"licenseCount"`
	State        string   `json:"state"`
	StartDate    dateJSON `json:"startDate"`
	EndDate      dateJSON `json:"endDate"`
}

type usageStatsJSON struct {
	LicenseConfigUsageStats []struct {
		LicenseConfig    string `json:"licenseConfig"`
		UsedLicenseCount string `json:"usedLicenseCount"`
	} `json:"licenseConfigUsageStats"`
}

type listUserLicensesJSON struct {
	UserLicenses  []userLicenseJSON `json:"userLicenses"`
	NextPageToken string            `json:"nextPageToken"`
}

type operationJSON struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Response struct {
		UserLicenses []userLicenseJSON `json:"userLicenses"`
		ErrorSamples []struct {
			Message string `json:"message"`
		} `json:"errorSamples"`
	} `json:"response"`
}

// --- HTTP plumbing ---

func (c *RESTClient) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Goog-User-Project", c.project.ProjectID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return &RemoteServiceError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RemoteServiceError{
			StatusCode: resp.StatusCode,
			Message:    remoteMessage(resp.Body),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &RemoteServiceError{Message: fmt.Sprintf("malformed response payload: %v", err)}
		}
	}
	return nil
}

// remoteMessage extracts the service's error message from a response body,
// falling back to the raw body text.
func remoteMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 64<<10))
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return string(data)
}

// --- operations ---

// ListLicenses fetches all user licenses in the configured user store,
// following page tokens until exhausted.
func (c *RESTClient) ListLicenses(ctx context.Context) ([]LicenseAssignment, error) {
	parent, err := c.project.UserStorePath()
	if err != nil {
		return nil, err
	}

	var out []LicenseAssignment
	pageToken := ""
	for {
		url := c.base + "/v1/" + parent + "/userLicenses"
		if pageToken != "" {
			url += "?pageToken=" + pageToken
		}
		var page listUserLicensesJSON
		if err := c.do(ctx, http.MethodGet, url, nil, &page); err != nil {
			return nil, err
		}
		for _, ul := range page.UserLicenses {
			out = append(out, assignmentFromJSON(ul))
		}
		if page.NextPageToken == "" {
			return out, nil
		}
		pageToken = page.NextPageToken
	}
}

func assignmentFromJSON(ul userLicenseJSON) LicenseAssignment {
	return LicenseAssignment{
		UserPrincipal: ul.UserPrincipal,
		UserProfile:   ul.UserProfile,
		State:         ul.LicenseAssignmentState,
		LicenseConfig: ul.LicenseConfig,
		CreateTime:    ul.CreateTime,
		UpdateTime:    ul.UpdateTime,
		LastLoginTime: ul.LastLoginTime,
	}
}

// ListSubscriptions fetches seat usage stats for every license config under
// the user store, then the config details for seat totals, state, and dates.
// Remote response order is preserved. A config whose detail fetch fails is
// skipped with a warning, matching the listing's best-effort enrichment.
func (c *RESTClient) ListSubscriptions(ctx context.Context) ([]SubscriptionDescriptor, error) {
	parent, err := c.project.UserStorePath()
	if err != nil {
		return nil, err
	}

	var stats usageStatsJSON
	url := c.base + "/v1/" + parent + "/licenseConfigsUsageStats"
	if err := c.do(ctx, http.MethodGet, url, nil, &stats); err != nil {
		return nil, err
	}

	subs := make([]SubscriptionDescriptor, 0, len(stats.LicenseConfigUsageStats))
	for _, st := range stats.LicenseConfigUsageStats {
		if st.LicenseConfig == "" {
			continue
		}

		var cfg licenseConfigJSON
		if err := c.do(ctx, http.MethodGet, c.base+"/v1/"+st.LicenseConfig, nil, &cfg); err != nil {
			slog.Warn("skipping subscription: could not fetch license config details",
				"license_config", st.LicenseConfig, "err", err)
			continue
		}

		used, _ := strconv.Atoi(st.UsedLicenseCount)
		total := -1
		if n, err := strconv.Atoi(cfg.LicenseCount); err == nil {
			total = n
		}
		state := cfg.State
		if state == "" {
			state = "Unknown"
		}

		subs = append(subs, SubscriptionDescriptor{
			DisplayName: displayNameFromPath(st.LicenseConfig),
			ConfigPath:  st.LicenseConfig,
			UsedCount:   used,
			TotalCount:  total,
			State:       state,
			StartDate:   cfg.StartDate.String(),
			EndDate:     cfg.EndDate.String(),
		})
	}
	return subs, nil
}

func displayNameFromPath(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// GrantLicense assigns the license at licenseConfigPath to userID via the
// batch update endpoint.
func (c *RESTClient) GrantLicense(ctx context.Context, userID, licenseConfigPath string) (*BatchUpdateResult, error) {
	if err := validateGrant(userID, licenseConfigPath); err != nil {
		return nil, err
	}
	return c.batchUpdate(ctx, grantBody(userID, licenseConfigPath))
}

// RevokeLicense removes userID's license assignment. licenseConfigPath is
// deliberately unused on the wire.
func (c *RESTClient) RevokeLicense(ctx context.Context, userID, licenseConfigPath string) (*BatchUpdateResult, error) {
	if err := validateRevoke(userID); err != nil {
		return nil, err
	}
	return c.batchUpdate(ctx, revokeBody(userID))
}

func (c *RESTClient) batchUpdate(ctx context.Context, body batchUpdateJSON) (*BatchUpdateResult, error) {
	parent, err := c.project.UserStorePath()
	if err != nil {
		return nil, err
	}

	var op operationJSON
	url := c.base + "/v1/" + parent + "/userLicenses:batchUpdate"
	if err := c.do(ctx, http.MethodPost, url, body, &op); err != nil {
		return nil, err
	}

	// Batch updates are long-running; poll the operation until it settles.
	for !op.Done {
		select {
		case <-ctx.Done():
			return nil, &RemoteServiceError{Message: ctx.Err().Error()}
		case <-time.After(c.pollInterval):
		}
		if err := c.do(ctx, http.MethodGet, c.base+"/v1/"+op.Name, nil, &op); err != nil {
			return nil, err
		}
	}

	if op.Error != nil {
		return nil, &RemoteServiceError{Message: op.Error.Message}
	}

	result := &BatchUpdateResult{}
	for _, ul := range op.Response.UserLicenses {
		result.UserLicenses = append(result.UserLicenses, assignmentFromJSON(ul))
	}
	for _, es := range op.Response.ErrorSamples {
		result.ErrorSamples = append(result.ErrorSamples, es.Message)
	}
	return result, nil
}
