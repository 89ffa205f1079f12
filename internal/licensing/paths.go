// Package licensing implements the Gemini Enterprise / NotebookLM Enterprise
// license management core: resource path resolution, the four user-license
// operations (list licenses, list subscriptions, grant, revoke), and the
// transports that carry them to the Discovery Engine service.
package licensing

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultUserStore is the fixed user store all license operations run against.
const DefaultUserStore = "default_user_store"

// ProjectContext carries the process-wide project scope. It is built once at
// startup and passed explicitly into every operation; operations never read
// ambient environment state.
type ProjectContext struct {
	// ProjectID is the textual project identifier, used for user store paths
	// and the X-Goog-User-Project header.
	ProjectID string

	// ProjectNumber is the numeric project identifier. License config paths
	// must embed the number: the service rejects textual IDs in that field.
	ProjectNumber int64

	// Location is the resource location, e.g. "global".
	Location string

	// UserStore overrides DefaultUserStore when non-empty.
	UserStore string
}

var licenseConfigPathRe = regexp.MustCompile(`^projects/[^/]+/locations/[^/]+/licenseConfigs/[^/]+$`)

// IsLicenseConfigPath reports whether s is a fully-qualified licenseConfigs
// resource name.
func IsLicenseConfigPath(s string) bool {
	return licenseConfigPathRe.MatchString(s)
}

// LicenseConfigPath resolves a subscription display name to the canonical
// resource name projects/{number}/locations/{location}/licenseConfigs/{name}.
// Input that is already a fully-qualified path is returned unchanged, so
// resolution is idempotent.
func (p ProjectContext) LicenseConfigPath(displayName string) (string, error) {
	if IsLicenseConfigPath(displayName) {
		return displayName, nil
	}
	if displayName == "" {
		return "", configErrorf("subscription display name is empty")
	}
	if strings.Contains(displayName, "/") {
		return "", configErrorf("subscription name %q is neither a display name nor a full licenseConfigs path", displayName)
	}
	if p.Location == "" {
		return "", configErrorf("location is empty")
	}
	if p.ProjectNumber <= 0 {
		return "", configErrorf("numeric project number is required for license config paths (have project ID %q); resolve it first", p.ProjectID)
	}
	return fmt.Sprintf("projects/%d/locations/%s/licenseConfigs/%s", p.ProjectNumber, p.Location, displayName), nil
}

// UserStorePath returns the parent resource name for user-license calls:
// projects/{project}/locations/{location}/userStores/{store}. The textual
// project ID is accepted here, matching remote semantics.
func (p ProjectContext) UserStorePath() (string, error) {
	if p.ProjectID == "" {
		return "", configErrorf("project ID is empty")
	}
	if p.Location == "" {
		return "", configErrorf("location is empty")
	}
	store := p.UserStore
	if store == "" {
		store = DefaultUserStore
	}
	return fmt.Sprintf("projects/%s/locations/%s/userStores/%s", p.ProjectID, p.Location, store), nil
}
