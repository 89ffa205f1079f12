package licensing

import (
	"context"
	"strconv"

	cloudresourcemanager "google.golang.org/api/cloudresourcemanager/v1"
	"google.golang.org/api/option"
)

// ResolveProjectNumber returns the numeric project number for a project
// identifier. Numeric input passes through untouched; a textual project ID is
// looked up once through the Cloud Resource Manager API. License config paths
// require the number, so this runs at startup rather than per call.
func ResolveProjectNumber(ctx context.Context, projectID string, opts ...option.ClientOption) (int64, error) {
	if projectID == "" {
		return 0, configErrorf("project ID is empty")
	}
	if n, err := strconv.ParseInt(projectID, 10, 64); err == nil && n > 0 {
		return n, nil
	}

	svc, err := cloudresourcemanager.NewService(ctx, opts...)
	if err != nil {
		return 0, configErrorf("create resource manager client: %v", err)
	}
	project, err := svc.Projects.Get(projectID).Context(ctx).Do()
	if err != nil {
		return 0, &RemoteServiceError{Message: err.Error()}
	}
	if project.ProjectNumber <= 0 {
		return 0, &RemoteServiceError{Message: "resource manager returned no project number for " + projectID}
	}
	return project.ProjectNumber, nil
}
