package app

import (
	"net/http"
	"testing"
)

func TestReactionKindsAndClientID(t *testing.T) {
	_, handler := newTestServer(t, &fakeGateway{})

	rr, payload := doJSON(t, handler, http.MethodGet, "/api/reactions/kinds", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	kinds, _ := payload["kinds"].([]any)
	if len(kinds) != 3 {
		t.Fatalf("expected 3 kinds, got %v", payload)
	}
	first, _ := kinds[0].(map[string]any)
	if first["name"] != "like" || first["emoji"] != "👍" {
		t.Fatalf("unexpected first kind %v", first)
	}

	rr, payload = doJSON(t, handler, http.MethodPost, "/api/reactions/client-id", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if id, _ := payload["clientId"].(string); len(id) != 36 {
		t.Fatalf("expected uuid client id, got %v", payload)
	}
}

func TestReactionAddGetRemove(t *testing.T) {
	_, handler := newTestServer(t, &fakeGateway{})

	rr, payload := doJSON(t, handler, http.MethodPost, "/api/reactions/hello-world", "", map[string]any{
		"reaction": "💡", "clientId": "client-a",
	})
	if rr.Code != http.StatusOK || payload["changed"] != true || payload["kind"] != "insightful" {
		t.Fatalf("unexpected add response %d %v", rr.Code, payload)
	}

	rr, payload = doJSON(t, handler, http.MethodPost, "/api/reactions/hello-world?kind=insightful&clientId=client-a", "", nil)
	if rr.Code != http.StatusOK || payload["changed"] != false {
		t.Fatalf("repeat add must be a no-op, got %d %v", rr.Code, payload)
	}

	rr, payload = doJSON(t, handler, http.MethodGet, "/api/reactions/hello-world", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	counts, _ := payload["counts"].(map[string]any)
	if counts["insightful"] != float64(1) || counts["like"] != float64(0) || counts["love"] != float64(0) {
		t.Fatalf("unexpected counts %v", counts)
	}

	rr, payload = doJSON(t, handler, http.MethodDelete, "/api/reactions/hello-world", "", map[string]any{
		"kind": "insightful", "clientId": "client-a",
	})
	if rr.Code != http.StatusOK || payload["changed"] != true {
		t.Fatalf("unexpected remove response %d %v", rr.Code, payload)
	}
	counts, _ = payload["counts"].(map[string]any)
	if counts["insightful"] != float64(0) {
		t.Fatalf("expected zero after remove, got %v", counts)
	}
}

func TestReactionRateLimit(t *testing.T) {
	_, handler := newTestServer(t, &fakeGateway{})

	kinds := []string{"like", "love", "insightful"}
	for i, kind := range kinds {
		rr, payload := doJSON(t, handler, http.MethodPost, "/api/reactions/post", "", map[string]any{"kind": kind, "clientId": "busy"})
		if rr.Code != http.StatusOK {
			t.Fatalf("call %d: expected 200, got %d %v", i, rr.Code, payload)
		}
	}

	rr, payload := doJSON(t, handler, http.MethodDelete, "/api/reactions/post", "", map[string]any{"kind": "like", "clientId": "busy"})
	if rr.Code != http.StatusTooManyRequests || payload["code"] != "RATE_LIMITED" {
		t.Fatalf("expected 429, got %d %v", rr.Code, payload)
	}

	rr, _ = doJSON(t, handler, http.MethodPost, "/api/reactions/post", "", map[string]any{"kind": "like", "clientId": "other"})
	if rr.Code != http.StatusOK {
		t.Fatalf("limits are per client, got %d", rr.Code)
	}
}

func TestReactionValidation(t *testing.T) {
	_, handler := newTestServer(t, &fakeGateway{})

	cases := []struct {
		name string
		body map[string]any
	}{
		{"unknown kind", map[string]any{"kind": "angry", "clientId": "c"}},
		{"missing client", map[string]any{"kind": "like"}},
		{"client with spaces", map[string]any{"kind": "like", "clientId": "a b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr, payload := doJSON(t, handler, http.MethodPost, "/api/reactions/post", "", tc.body)
			if rr.Code != http.StatusUnprocessableEntity || payload["code"] != "VALIDATION_ERROR" {
				t.Fatalf("expected 422, got %d %v", rr.Code, payload)
			}
		})
	}

	rr, _ := doJSON(t, handler, http.MethodPut, "/api/reactions/post", "", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}
