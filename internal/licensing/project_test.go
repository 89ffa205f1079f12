package licensing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/api/option"
)

func TestResolveProjectNumberNumericPassthrough(t *testing.T) {
	got, err := ResolveProjectNumber(context.Background(), "12345")
	if err != nil {
		t.Fatalf("ResolveProjectNumber: %v", err)
	}
	if got != 12345 {
		t.Errorf("got %d, want 12345", got)
	}
}

func TestResolveProjectNumberEmpty(t *testing.T) {
	_, err := ResolveProjectNumber(context.Background(), "")
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("error = %T %v, want *ConfigurationError", err, err)
	}
}

func TestResolveProjectNumberLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/projects/my-project" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"projectId":"my-project","projectNumber":"12345"}`))
	}))
	defer srv.Close()

	got, err := ResolveProjectNumber(context.Background(), "my-project",
		option.WithEndpoint(srv.URL), option.WithoutAuthentication())
	if err != nil {
		t.Fatalf("ResolveProjectNumber: %v", err)
	}
	if got != 12345 {
		t.Errorf("got %d, want 12345", got)
	}
}

func TestResolveProjectNumberRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"project not found"}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := ResolveProjectNumber(context.Background(), "missing-project",
		option.WithEndpoint(srv.URL), option.WithoutAuthentication())
	var remoteErr *RemoteServiceError
	if !errors.As(err, &remoteErr) {
		t.Errorf("error = %T %v, want *RemoteServiceError", err, err)
	}
}
