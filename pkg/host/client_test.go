package host

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/mineguard/cheatercheck/pkg/world"
)

type shimCall struct {
	path    string
	payload map[string]any
}

func newShim(t *testing.T, respond func(path string, w http.ResponseWriter)) (*Client, *[]shimCall) {
	t.Helper()
	var calls []shimCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
			t.Errorf("authorization header = %q", got)
		}
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		calls = append(calls, shimCall{path: r.URL.Path, payload: payload})
		if respond != nil {
			respond(r.URL.Path, w)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "sekrit", nil), &calls
}

func TestMessageAndCommandDelivery(t *testing.T) {
	c, calls := newShim(t, nil)
	id := uuid.New()

	c.MessagePlayer(id, "hello")
	c.RunCommand("ban Suspect Cheating")
	c.BroadcastPermission("cheatercheck.notifications", "staff only")

	if len(*calls) != 3 {
		t.Fatalf("got %d calls, want 3", len(*calls))
	}
	if (*calls)[0].path != "/v1/message" || (*calls)[0].payload["text"] != "hello" {
		t.Errorf("message call = %+v", (*calls)[0])
	}
	if (*calls)[1].payload["command"] != "ban Suspect Cheating" {
		t.Errorf("command call = %+v", (*calls)[1])
	}
	if (*calls)[2].payload["permission"] != "cheatercheck.notifications" {
		t.Errorf("broadcast call = %+v", (*calls)[2])
	}
}

func TestPushTeleportUsesShimVerdict(t *testing.T) {
	success := true
	c, _ := newShim(t, func(path string, w http.ResponseWriter) {
		json.NewEncoder(w).Encode(map[string]bool{"success": success})
	})

	if !c.PushTeleport(uuid.New(), world.Location{World: "w"}) {
		t.Fatal("successful teleport reported as failed")
	}
	success = false
	if c.PushTeleport(uuid.New(), world.Location{World: "w"}) {
		t.Fatal("failed teleport reported as success")
	}
}

func TestSpawnParticleRejectionIsAnError(t *testing.T) {
	c, _ := newShim(t, func(path string, w http.ResponseWriter) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	})
	if err := c.SpawnParticle("world", "NOT_A_PARTICLE", 0, 0, 0); err == nil {
		t.Fatal("particle rejection should surface as error")
	}
}

func TestSpawnParticleSwallowsTransientFailures(t *testing.T) {
	c, _ := newShim(t, func(path string, w http.ResponseWriter) {
		w.WriteHeader(http.StatusBadGateway)
	})
	if err := c.SpawnParticle("world", "BARRIER", 0, 0, 0); err != nil {
		t.Fatalf("transient failure should not surface, got %v", err)
	}
}

func TestBlockQueryFailsSolid(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "", nil) // nothing listening
	if !c.SolidAt("world", 0, 64, 0) {
		t.Fatal("unreachable shim should report solid")
	}
}

func TestSolidAtDecodesResponse(t *testing.T) {
	c, _ := newShim(t, func(path string, w http.ResponseWriter) {
		json.NewEncoder(w).Encode(map[string]bool{"solid": false})
	})
	if c.SolidAt("world", 0, 100, 0) {
		t.Fatal("air reported as solid")
	}
}
