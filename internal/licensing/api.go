package licensing

import (
	"context"
	"time"

	discoveryengine "cloud.google.com/go/discoveryengine/apiv1"
	"cloud.google.com/go/discoveryengine/apiv1/discoveryenginepb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// APIClient carries user-license calls over the official Discovery Engine
// client. Subscription listing still goes through the REST session: the
// licenseConfigsUsageStats surface is not exposed by the generated client
// version the agent framework lets us pin.
type APIClient struct {
	project ProjectContext
	ul      *discoveryengine.UserLicenseClient
	rest    *RESTClient
}

// NewAPIClient creates an APIClient. Non-global locations route to the
// location-prefixed endpoint.
func NewAPIClient(ctx context.Context, project ProjectContext, opts ...option.ClientOption) (*APIClient, error) {
	if project.Location != "" && project.Location != "global" {
		opts = append(opts, option.WithEndpoint(project.Location+"-discoveryengine.googleapis.com:443"))
	}
	ul, err := discoveryengine.NewUserLicenseClient(ctx, opts...)
	if err != nil {
		return nil, configErrorf("create user license client: %v", err)
	}
	rest, err := NewRESTClient(ctx, project)
	if err != nil {
		ul.Close()
		return nil, err
	}
	return &APIClient{project: project, ul: ul, rest: rest}, nil
}

// Close releases the underlying client connection.
func (c *APIClient) Close() error {
	return c.ul.Close()
}

// grantRequest builds the batch update proto for a grant. The license config
// lives inside the per-user license object, not on the request.
func grantRequest(parent, userID, licenseConfigPath string) *discoveryenginepb.BatchUpdateUserLicensesRequest {
	return &discoveryenginepb.BatchUpdateUserLicensesRequest{
		Parent:                       parent,
		DeleteUnassignedUserLicenses: false,
		Source: &discoveryenginepb.BatchUpdateUserLicensesRequest_InlineSource_{
			InlineSource: &discoveryenginepb.BatchUpdateUserLicensesRequest_InlineSource{
				UserLicenses: []*discoveryenginepb.UserLicense{{
					UserPrincipal: userID,
					LicenseConfig: licenseConfigPath,
				}},
			},
		},
	}
}

// revokeRequest builds the batch update proto for a revoke: delete-unassigned
// set, no license config reference anywhere.
func revokeRequest(parent, userID string) *discoveryenginepb.BatchUpdateUserLicensesRequest {
	return &discoveryenginepb.BatchUpdateUserLicensesRequest{
		Parent:                       parent,
		DeleteUnassignedUserLicenses: true,
		Source: &discoveryenginepb.BatchUpdateUserLicensesRequest_InlineSource_{
			InlineSource: &discoveryenginepb.BatchUpdateUserLicensesRequest_InlineSource{
				UserLicenses: []*discoveryenginepb.UserLicense{{
					UserPrincipal: userID,
				}},
			},
		},
	}
}

// ListLicenses returns all user licenses in the configured user store.
func (c *APIClient) ListLicenses(ctx context.Context) ([]LicenseAssignment, error) {
	parent, err := c.project.UserStorePath()
	if err != nil {
		return nil, err
	}

	var out []LicenseAssignment
	it := c.ul.ListUserLicenses(ctx, &discoveryenginepb.ListUserLicensesRequest{Parent: parent})
	for {
		ul, err := it.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, &RemoteServiceError{Message: err.Error()}
		}
		out = append(out, assignmentFromProto(ul))
	}
}

func assignmentFromProto(ul *discoveryenginepb.UserLicense) LicenseAssignment {
	return LicenseAssignment{
		UserPrincipal: ul.GetUserPrincipal(),
		UserProfile:   ul.GetUserProfile(),
		State:         ul.GetLicenseAssignmentState().String(),
		LicenseConfig: ul.GetLicenseConfig(),
		CreateTime:    formatTimestamp(ul.GetCreateTime()),
		UpdateTime:    formatTimestamp(ul.GetUpdateTime()),
		LastLoginTime: formatTimestamp(ul.GetLastLoginTime()),
	}
}

func formatTimestamp(ts *timestamppb.Timestamp) string {
	if ts == nil {
		return ""
	}
	return ts.AsTime().UTC().Format(time.RFC3339)
}

// ListSubscriptions delegates to the REST session.
func (c *APIClient) ListSubscriptions(ctx context.Context) ([]SubscriptionDescriptor, error) {
	return c.rest.ListSubscriptions(ctx)
}

// GrantLicense assigns the license at licenseConfigPath to userID and waits
// for the batch update operation to settle.
func (c *APIClient) GrantLicense(ctx context.Context, userID, licenseConfigPath string) (*BatchUpdateResult, error) {
	if err := validateGrant(userID, licenseConfigPath); err != nil {
		return nil, err
	}
	parent, err := c.project.UserStorePath()
	if err != nil {
		return nil, err
	}
	return c.batchUpdate(ctx, grantRequest(parent, userID, licenseConfigPath))
}

// RevokeLicense removes userID's license assignment. licenseConfigPath is
// deliberately unused on the wire.
func (c *APIClient) RevokeLicense(ctx context.Context, userID, licenseConfigPath string) (*BatchUpdateResult, error) {
	if err := validateRevoke(userID); err != nil {
		return nil, err
	}
	parent, err := c.project.UserStorePath()
	if err != nil {
		return nil, err
	}
	return c.batchUpdate(ctx, revokeRequest(parent, userID))
}

func (c *APIClient) batchUpdate(ctx context.Context, req *discoveryenginepb.BatchUpdateUserLicensesRequest) (*BatchUpdateResult, error) {
	op, err := c.ul.BatchUpdateUserLicenses(ctx, req)
	if err != nil {
		return nil, &RemoteServiceError{Message: err.Error()}
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, &RemoteServiceError{Message: err.Error()}
	}

	result := &BatchUpdateResult{}
	for _, ul := range resp.GetUserLicenses() {
		result.UserLicenses = append(result.UserLicenses, assignmentFromProto(ul))
	}
	for _, st := range resp.GetErrorSamples() {
		result.ErrorSamples = append(result.ErrorSamples, st.GetMessage())
	}
	return result, nil
}
