package api

import (
	"context"
	"net/http"
	"testing"
)

// authInfoStub answers the registry's credential introspection endpoint
// with the given rights and everything else with an empty object.
func authInfoStub(rights string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/v3/auth_info" {
			w.Write([]byte(`{"api_key":{"api_key":{"rights":[` + rights + `]}}}`)) //nolint:errcheck
			return
		}
		w.Write([]byte(`{}`)) //nolint:errcheck
	}
}

func TestConfigApplyAndStatus(t *testing.T) {
	env := newTestEnv(t, authInfoStub(`"RIGHT_APPLICATION_ALL","RIGHT_GATEWAY_ALL"`), nil)
	ctx := context.Background()
	token := testToken(t, nil)

	body := `{"enabled":true,"api_key":"NNSXS.NEWKEYX9K2","application_id":"ft-app-acme-foods","cluster":"nam1"}`
	w := env.doRequest(t, http.MethodPut, "/api/v1/orgs/org-1/config", token, body)
	if w.Code != http.StatusOK {
		t.Fatalf("apply status = %d, body %s", w.Code, w.Body.String())
	}

	resp := decodeBody(t, w)
	if resp["state"] != "canonical" {
		t.Errorf("state = %v, want canonical", resp["state"])
	}
	cfg, ok := resp["config"].(map[string]any)
	if !ok {
		t.Fatalf("config missing from response: %v", resp)
	}
	if cfg["api_key_last4"] != "X9K2" {
		t.Errorf("api_key_last4 = %v", cfg["api_key_last4"])
	}
	if cfg["gateway_rights_verified"] != true {
		t.Error("gateway rights should be verified")
	}
	validation, ok := resp["validation"].(map[string]any)
	if !ok || validation["valid"] != true {
		t.Errorf("validation = %v", resp["validation"])
	}

	w = env.doRequest(t, http.MethodGet, "/api/v1/orgs/org-1/config", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	resp = decodeBody(t, w)
	if resp["drifted"] != false {
		t.Errorf("drifted = %v, want false", resp["drifted"])
	}
	if resp["state"] != "canonical" {
		t.Errorf("state = %v, want canonical", resp["state"])
	}

	// A checkpoint update rewrites the application id without
	// re-canonicalising; the status endpoint must surface the drift.
	if err := env.configs.SetApplicationCreated(ctx, "org-1", "ft-app-other"); err != nil {
		t.Fatalf("SetApplicationCreated: %v", err)
	}

	w = env.doRequest(t, http.MethodGet, "/api/v1/orgs/org-1/config", token, "")
	resp = decodeBody(t, w)
	if resp["drifted"] != true {
		t.Errorf("drifted = %v, want true", resp["drifted"])
	}
	if resp["state"] != "drifted" {
		t.Errorf("state = %v, want drifted", resp["state"])
	}

	// Re-applying re-validates and clears the drift.
	w = env.doRequest(t, http.MethodPut, "/api/v1/orgs/org-1/config", token,
		`{"enabled":true,"cluster":"nam1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("re-apply status = %d, body %s", w.Code, w.Body.String())
	}
	w = env.doRequest(t, http.MethodGet, "/api/v1/orgs/org-1/config", token, "")
	resp = decodeBody(t, w)
	if resp["drifted"] != false {
		t.Errorf("drifted after re-apply = %v, want false", resp["drifted"])
	}
}

func TestConfigApplyAuthFailure(t *testing.T) {
	identity := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid key"}`)) //nolint:errcheck
	}
	env := newTestEnv(t, identity, nil)
	token := testToken(t, nil)

	body := `{"enabled":true,"api_key":"NNSXS.BADKEY","cluster":"nam1"}`
	w := env.doRequest(t, http.MethodPut, "/api/v1/orgs/org-1/config", token, body)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
	resp := decodeBody(t, w)
	if resp["code"] != ErrCodeRegistryAuth {
		t.Errorf("code = %v, want %s", resp["code"], ErrCodeRegistryAuth)
	}

	// The failed candidate must not be persisted.
	w = env.doRequest(t, http.MethodGet, "/api/v1/orgs/org-1/config", token, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status after failed apply = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestConfigStatusNotFound(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	token := testToken(t, nil)

	w := env.doRequest(t, http.MethodGet, "/api/v1/orgs/org-1/config", token, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestConfigApplyValidation(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	token := testToken(t, nil)

	t.Run("invalid body", func(t *testing.T) {
		w := env.doRequest(t, http.MethodPut, "/api/v1/orgs/org-1/config", token, "{not json")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("unknown credential scope", func(t *testing.T) {
		w := env.doRequest(t, http.MethodPut, "/api/v1/orgs/org-1/config", token,
			`{"enabled":true,"credential_scope":"something-else"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}
