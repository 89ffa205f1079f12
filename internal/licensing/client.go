package licensing

import (
	"context"
	"strings"

	"google.golang.org/api/option"
)

// SubscriptionDescriptor describes one subscription (license config) with its
// seat usage. DisplayName is the only field a human should need to reference;
// ConfigPath is what grant calls must carry.
type SubscriptionDescriptor struct {
	DisplayName string `json:"display_name"`
	ConfigPath  string `json:"config_path"`
	UsedCount   int    `json:"used_count"`
	TotalCount  int    `json:"total_count"`
	State       string `json:"state"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
}

// LicenseAssignment links a user principal to a consumed seat. All assignment
// state lives in the remote service; these values are a snapshot of one
// response.
type LicenseAssignment struct {
	UserPrincipal string `json:"user_principal"`
	UserProfile   string `json:"user_profile,omitempty"`
	State         string `json:"license_assignment_state"`
	LicenseConfig string `json:"license_config,omitempty"`
	CreateTime    string `json:"create_time,omitempty"`
	UpdateTime    string `json:"update_time,omitempty"`
	LastLoginTime string `json:"last_login_time,omitempty"`
}

// BatchUpdateResult is the acknowledged outcome of a grant or revoke.
type BatchUpdateResult struct {
	UserLicenses []LicenseAssignment `json:"user_licenses,omitempty"`
	ErrorSamples []string            `json:"error_samples,omitempty"`
}

// Client is the transport-agnostic surface of the license service. Both the
// official Discovery Engine client and the raw REST session implement it, so
// callers never care which wire path is in use.
type Client interface {
	// ListLicenses returns all user licenses in the configured user store,
	// preserving remote response order.
	ListLicenses(ctx context.Context) ([]LicenseAssignment, error)

	// ListSubscriptions returns all subscriptions scoped to the project and
	// location, preserving remote response order.
	ListSubscriptions(ctx context.Context) ([]SubscriptionDescriptor, error)

	// GrantLicense assigns the license identified by licenseConfigPath to
	// userID. The path must be fully qualified.
	GrantLicense(ctx context.Context, userID, licenseConfigPath string) (*BatchUpdateResult, error)

	// RevokeLicense removes userID's license assignment. licenseConfigPath is
	// accepted for symmetry with GrantLicense but is never transmitted: the
	// service infers the subscription from the user's current assignment.
	RevokeLicense(ctx context.Context, userID, licenseConfigPath string) (*BatchUpdateResult, error)
}

// Transport names a wire path for NewClient.
type Transport string

const (
	// TransportAPI uses the official Discovery Engine client for user-license
	// calls (subscription listing still goes over REST, see APIClient).
	TransportAPI Transport = "api"

	// TransportREST uses the raw authenticated REST session for everything.
	TransportREST Transport = "rest"
)

// NewClient builds a Client for the given transport. An empty transport
// selects TransportAPI.
func NewClient(ctx context.Context, project ProjectContext, transport Transport, opts ...option.ClientOption) (Client, error) {
	switch Transport(strings.ToLower(string(transport))) {
	case TransportREST:
		return NewRESTClient(ctx, project)
	case TransportAPI, "":
		return NewAPIClient(ctx, project, opts...)
	default:
		return nil, configErrorf("unknown transport %q (supported: api, rest)", transport)
	}
}

func validateGrant(userID, licenseConfigPath string) error {
	if userID == "" {
		return validationErrorf("user_id is empty")
	}
	if licenseConfigPath == "" {
		return validationErrorf("a license_config_path is required; use list_subscriptions to find an available subscription and pass its config_path")
	}
	if !IsLicenseConfigPath(licenseConfigPath) {
		return validationErrorf("license_config_path %q is not a full licenseConfigs resource name (want projects/{number}/locations/{location}/licenseConfigs/{name})", licenseConfigPath)
	}
	return nil
}

func validateRevoke(userID string) error {
	if userID == "" {
		return validationErrorf("user_id is empty")
	}
	return nil
}
