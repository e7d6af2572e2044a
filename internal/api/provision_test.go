package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/getdatasurge/freshtrack-pro-sub011/internal/fleet"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/infrastructure/mqtt"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/netconfig"
)

// fakeEvents captures published lifecycle events.
type fakeEvents struct {
	published []mqtt.LifecycleEvent
}

func (f *fakeEvents) PublishLifecycle(event mqtt.LifecycleEvent) error {
	f.published = append(f.published, event)
	return nil
}

func TestProvisionDevice(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	token := testToken(t, nil)

	events := &fakeEvents{}
	env.srv.events = events

	seedConfig(t, env, "org-1")
	dev := seedDevice(t, env, "org-1", "A84041000181D5E8")

	w := env.doRequest(t, http.MethodPost, "/api/v1/orgs/org-1/devices/"+dev.ID+"/provision", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", w.Code, http.StatusOK, w.Body.String())
	}

	resp := decodeBody(t, w)
	if resp["status"] != "provisioned" {
		t.Errorf("status = %v, want provisioned", resp["status"])
	}
	if resp["registry_id"] != "eui-a84041000181d5e8" {
		t.Errorf("registry_id = %v", resp["registry_id"])
	}
	if resp["application_id"] != "ft-app-acme-foods" {
		t.Errorf("application_id = %v", resp["application_id"])
	}

	got, err := env.devices.GetByID(ctx, "org-1", dev.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.Provisioned() {
		t.Error("device not marked provisioned")
	}
	if got.RegistryApplicationID == nil || *got.RegistryApplicationID != "ft-app-acme-foods" {
		t.Errorf("registry application id = %v", got.RegistryApplicationID)
	}

	if len(events.published) != 1 {
		t.Fatalf("published events = %d, want 1", len(events.published))
	}
	if e := events.published[0]; e.Type != mqtt.EventProvisioned || e.EntityType != "device" || e.EntityEUI != "A84041000181D5E8" {
		t.Errorf("event = %+v", e)
	}

	// The mutation lands in the audit trail.
	w = env.doRequest(t, http.MethodGet, "/api/v1/orgs/org-1/audit?action=provision", token, "")
	audits := decodeBody(t, w)
	if total, _ := audits["total"].(float64); total < 1 {
		t.Error("provision not audited")
	}
}

func TestProvisionDeviceNotEligible(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	token := testToken(t, nil)

	dev := seedDevice(t, env, "org-1", "A84041000181D5E8")

	t.Run("missing configuration is a conflict", func(t *testing.T) {
		w := env.doRequest(t, http.MethodPost, "/api/v1/orgs/org-1/devices/"+dev.ID+"/provision", token, "")
		if w.Code != http.StatusConflict {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
		}
		resp := decodeBody(t, w)
		if resp["code"] != ErrCodeNotEligible {
			t.Errorf("code = %v, want %s", resp["code"], ErrCodeNotEligible)
		}
		if resp["hint"] != "NOT_CONFIGURED" {
			t.Errorf("hint = %v, want NOT_CONFIGURED", resp["hint"])
		}
		if resp["message"] == nil || resp["message"] == "" {
			t.Error("denial must carry a reason")
		}
	})

	t.Run("permission denial is forbidden", func(t *testing.T) {
		seedConfig(t, env, "org-1")
		denied := testToken(t, boolPtr(false))

		w := env.doRequest(t, http.MethodPost, "/api/v1/orgs/org-1/devices/"+dev.ID+"/provision", denied, "")
		if w.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
		}
		resp := decodeBody(t, w)
		if resp["hint"] != "PERMISSION_DENIED" {
			t.Errorf("hint = %v, want PERMISSION_DENIED", resp["hint"])
		}
	})

	t.Run("already provisioned", func(t *testing.T) {
		w := env.doRequest(t, http.MethodPost, "/api/v1/orgs/org-1/devices/"+dev.ID+"/provision", token, "")
		if w.Code != http.StatusOK {
			t.Fatalf("first provision status = %d, body %s", w.Code, w.Body.String())
		}

		w = env.doRequest(t, http.MethodPost, "/api/v1/orgs/org-1/devices/"+dev.ID+"/provision", token, "")
		if w.Code != http.StatusConflict {
			t.Fatalf("second provision status = %d, want %d", w.Code, http.StatusConflict)
		}
		resp := decodeBody(t, w)
		if resp["hint"] != "ALREADY_PROVISIONED" {
			t.Errorf("hint = %v, want ALREADY_PROVISIONED", resp["hint"])
		}
	})

	t.Run("unknown device", func(t *testing.T) {
		w := env.doRequest(t, http.MethodPost, "/api/v1/orgs/org-1/devices/no-such/provision", token, "")
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

func TestProvisionDeviceRegistryAuthFailure(t *testing.T) {
	identity := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid key"}`)) //nolint:errcheck
	}
	env := newTestEnv(t, identity, nil)
	ctx := context.Background()
	token := testToken(t, nil)

	seedConfig(t, env, "org-1")
	dev := seedDevice(t, env, "org-1", "A84041000181D5E8")

	w := env.doRequest(t, http.MethodPost, "/api/v1/orgs/org-1/devices/"+dev.ID+"/provision", token, "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
	resp := decodeBody(t, w)
	if resp["code"] != ErrCodeRegistryAuth {
		t.Errorf("code = %v, want %s", resp["code"], ErrCodeRegistryAuth)
	}

	got, err := env.devices.GetByID(ctx, "org-1", dev.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Provisioned() {
		t.Error("failed provision must not mark the device provisioned")
	}
}

func TestProvisionGateway(t *testing.T) {
	identity := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/api-keys") {
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"key-1","key":"NNSXS.FRESHLNSKEY","name":"freshtrack-lns","rights":["RIGHT_GATEWAY_LINK","RIGHT_GATEWAY_INFO"]}`)) //nolint:errcheck
			return
		}
		w.Write([]byte(`{}`)) //nolint:errcheck
	}
	env := newTestEnv(t, identity, nil)
	ctx := context.Background()
	token := testToken(t, nil)

	events := &fakeEvents{}
	env.srv.events = events

	err := env.configs.Upsert(ctx, &netconfig.OrgConfig{
		OrgID:                 "org-1",
		Enabled:               true,
		HasAPIKey:             true,
		APIKeyLast4:           "ab12",
		ApplicationID:         strPtr("ft-app-acme-foods"),
		Cluster:               "eu1",
		CredentialScope:       netconfig.ScopeOrg,
		GatewayRightsVerified: true,
	})
	if err != nil {
		t.Fatalf("seeding config: %v", err)
	}

	gw := &fleet.Gateway{OrgID: "org-1", Name: "Roof Gateway", GatewayEUI: "58A0CBFFFE802A1D"}
	if err := env.gateways.Create(ctx, gw); err != nil {
		t.Fatalf("creating gateway: %v", err)
	}

	w := env.doRequest(t, http.MethodPost, "/api/v1/orgs/org-1/gateways/"+gw.ID+"/provision", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", w.Code, http.StatusOK, w.Body.String())
	}

	resp := decodeBody(t, w)
	if resp["registry_id"] != "ft-gw-fe802a1d" {
		t.Errorf("registry_id = %v", resp["registry_id"])
	}
	key, ok := resp["lns_key"].(map[string]any)
	if !ok || key["key"] != "NNSXS.FRESHLNSKEY" {
		t.Errorf("lns_key = %v, want the minted secret", resp["lns_key"])
	}

	got, err := env.gateways.GetByID(ctx, "org-1", gw.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.Provisioned() {
		t.Error("gateway not marked provisioned")
	}

	if len(events.published) != 1 || events.published[0].EntityType != "gateway" {
		t.Errorf("events = %+v", events.published)
	}
}

func TestProvisionGatewayRightsNotVerified(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	token := testToken(t, nil)

	seedConfig(t, env, "org-1") // GatewayRightsVerified left false

	gw := &fleet.Gateway{OrgID: "org-1", Name: "Roof Gateway", GatewayEUI: "58A0CBFFFE802A1D"}
	if err := env.gateways.Create(ctx, gw); err != nil {
		t.Fatalf("creating gateway: %v", err)
	}

	w := env.doRequest(t, http.MethodPost, "/api/v1/orgs/org-1/gateways/"+gw.ID+"/provision", token, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	resp := decodeBody(t, w)
	if resp["hint"] != "MISSING_GATEWAY_RIGHTS" {
		t.Errorf("hint = %v, want MISSING_GATEWAY_RIGHTS", resp["hint"])
	}
}
