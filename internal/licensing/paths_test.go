package licensing

import (
	"errors"
	"testing"
)

func TestLicenseConfigPath(t *testing.T) {
	base := ProjectContext{
		ProjectID:     "my-project",
		ProjectNumber: 12345,
		Location:      "global",
	}

	tests := []struct {
		name        string
		project     ProjectContext
		displayName string
		want        string
		wantErr     bool
	}{
		{
			name:        "display name resolves to canonical path",
			project:     base,
			displayName: "my-subscription",
			want:        "projects/12345/locations/global/licenseConfigs/my-subscription",
		},
		{
			name:        "already resolved path passes through unchanged",
			project:     base,
			displayName: "projects/99999/locations/eu/licenseConfigs/other-subscription",
			want:        "projects/99999/locations/eu/licenseConfigs/other-subscription",
		},
		{
			name:        "empty display name",
			project:     base,
			displayName: "",
			wantErr:     true,
		},
		{
			name:        "empty location",
			project:     ProjectContext{ProjectID: "my-project", ProjectNumber: 12345},
			displayName: "my-subscription",
			wantErr:     true,
		},
		{
			name:        "missing project number",
			project:     ProjectContext{ProjectID: "my-project", Location: "global"},
			displayName: "my-subscription",
			wantErr:     true,
		},
		{
			name:        "slash in display name is neither short nor full",
			project:     base,
			displayName: "projects/12345/locations/global",
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.project.LicenseConfigPath(tt.displayName)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("LicenseConfigPath(%q) = %q, want error", tt.displayName, got)
				}
				var cfgErr *ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Errorf("LicenseConfigPath(%q) error = %T, want *ConfigurationError", tt.displayName, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("LicenseConfigPath(%q): %v", tt.displayName, err)
			}
			if got != tt.want {
				t.Errorf("LicenseConfigPath(%q) = %q, want %q", tt.displayName, got, tt.want)
			}
		})
	}
}

func TestLicenseConfigPathIdempotent(t *testing.T) {
	p := ProjectContext{ProjectID: "my-project", ProjectNumber: 12345, Location: "global"}

	first, err := p.LicenseConfigPath("my-subscription")
	if err != nil {
		t.Fatalf("first resolution: %v", err)
	}
	second, err := p.LicenseConfigPath(first)
	if err != nil {
		t.Fatalf("second resolution: %v", err)
	}
	if second != first {
		t.Errorf("resolution is not idempotent: %q != %q", second, first)
	}
}

func TestUserStorePath(t *testing.T) {
	tests := []struct {
		name    string
		project ProjectContext
		want    string
		wantErr bool
	}{
		{
			name:    "default user store",
			project: ProjectContext{ProjectID: "my-project", Location: "global"},
			want:    "projects/my-project/locations/global/userStores/default_user_store",
		},
		{
			name:    "explicit user store",
			project: ProjectContext{ProjectID: "my-project", Location: "eu", UserStore: "custom_store"},
			want:    "projects/my-project/locations/eu/userStores/custom_store",
		},
		{
			name:    "empty project",
			project: ProjectContext{Location: "global"},
			wantErr: true,
		},
		{
			name:    "empty location",
			project: ProjectContext{ProjectID: "my-project"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.project.UserStorePath()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("UserStorePath() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("UserStorePath(): %v", err)
			}
			if got != tt.want {
				t.Errorf("UserStorePath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsLicenseConfigPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"projects/12345/locations/global/licenseConfigs/my-subscription", true},
		{"projects/my-project/locations/global/licenseConfigs/sub", true},
		{"my-subscription", false},
		{"projects/12345/locations/global", false},
		{"projects/12345/locations/global/licenseConfigs/", false},
		{"projects/12345/locations/global/licenseConfigs/a/b", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsLicenseConfigPath(tt.path); got != tt.want {
			t.Errorf("IsLicenseConfigPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
