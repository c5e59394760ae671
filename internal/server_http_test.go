package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"eventchat/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	store, err := storage.NewStore("sqlite://file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	server := NewServer(store)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.ServeWS)
	mux.HandleFunc("/signup", server.HandleSignup)
	mux.HandleFunc("/login", server.HandleLogin)
	mux.HandleFunc("/logout", server.HandleLogout)
	mux.HandleFunc("/events", server.HandleEvents)
	mux.HandleFunc("/events/", server.HandleEventSubtree)
	mux.Handle("/metrics", server.MetricsHandler())

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return server, ts
}

func postJSON(t *testing.T, url, token string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func signupAndLogin(t *testing.T, baseURL, username string) loginResponse {
	t.Helper()
	resp := postJSON(t, baseURL+"/signup", "", signupRequest{Username: username, Password: "secret"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup: status %d", resp.StatusCode)
	}
	resp = postJSON(t, baseURL+"/login", "", loginRequest{Username: username, Password: "secret"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", resp.StatusCode)
	}
	var login loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if login.Token == "" || login.UserID == 0 {
		t.Fatalf("incomplete login response: %+v", login)
	}
	return login
}

func TestSignupAndLoginFlow(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/signup", "", signupRequest{Username: "ana", Password: "secret"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup: status %d", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/signup", "", signupRequest{Username: "ana", Password: "other"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate signup: status %d, want 409", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/login", "", loginRequest{Username: "ana", Password: "wrong"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad password: status %d, want 401", resp.StatusCode)
	}

	login := signupAndLogin(t, ts.URL, "bob")
	if time.Until(login.ExpiresAt) <= 0 {
		t.Fatalf("token already expired: %v", login.ExpiresAt)
	}

	// logout invalidates the token
	resp = postJSON(t, ts.URL+"/logout", login.Token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: status %d", resp.StatusCode)
	}
	resp = postJSON(t, ts.URL+"/logout", login.Token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("logout with dead token: status %d, want 401", resp.StatusCode)
	}
}

func TestEventCreateAndPublicReads(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/events", "", createEventRequest{Title: "Launch"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous create: status %d, want 401", resp.StatusCode)
	}

	login := signupAndLogin(t, ts.URL, "ana")
	resp = postJSON(t, ts.URL+"/events", login.Token, createEventRequest{
		ID:       "E1",
		Title:    "Launch party",
		Category: "meetup",
		StartsAt: time.Now().Add(time.Hour).Unix(),
		Capacity: 50,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d", resp.StatusCode)
	}
	var created Event
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.ID != "E1" || created.Title != "Launch party" {
		t.Fatalf("unexpected created event: %+v", created)
	}

	// list and detail are public reads
	listResp, err := http.Get(ts.URL + "/events")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer listResp.Body.Close()
	var list eventsResponse
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Events) != 1 || list.Events[0].ID != "E1" {
		t.Fatalf("unexpected event list: %+v", list.Events)
	}

	detailResp, err := http.Get(ts.URL + "/events/E1")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	defer detailResp.Body.Close()
	if detailResp.StatusCode != http.StatusOK {
		t.Fatalf("detail: status %d", detailResp.StatusCode)
	}

	missingResp, err := http.Get(ts.URL + "/events/nope")
	if err != nil {
		t.Fatalf("missing detail: %v", err)
	}
	missingResp.Body.Close()
	if missingResp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing event: status %d, want 404", missingResp.StatusCode)
	}
}

func TestEventHistoryOrderingAndLimit(t *testing.T) {
	server, ts := newTestServer(t)
	login := signupAndLogin(t, ts.URL, "ana")

	resp := postJSON(t, ts.URL+"/events", login.Token, createEventRequest{ID: "E1", Title: "Launch"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d", resp.StatusCode)
	}

	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Unix()
	for i := 0; i < 5; i++ {
		err := server.store.InsertMessage(ctx, storage.Message{
			MessageID: fmt.Sprintf("m%d", i+1),
			EventID:   "E1",
			UserID:    login.UserID,
			UserName:  login.Username,
			Text:      fmt.Sprintf("message %d", i+1),
			Ts:        base + int64(i),
		})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	// full history, oldest first, no auth header
	histResp, err := http.Get(ts.URL + "/events/E1/messages")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	defer histResp.Body.Close()
	var history historyResponse
	if err := json.NewDecoder(histResp.Body).Decode(&history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Messages) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(history.Messages))
	}
	for i, message := range history.Messages {
		if want := fmt.Sprintf("m%d", i+1); message.MessageID != want {
			t.Fatalf("position %d: got %s, want %s", i, message.MessageID, want)
		}
	}

	// a limit keeps the newest tail, still oldest first
	limitResp, err := http.Get(ts.URL + "/events/E1/messages?limit=2")
	if err != nil {
		t.Fatalf("limited history: %v", err)
	}
	defer limitResp.Body.Close()
	var limited historyResponse
	if err := json.NewDecoder(limitResp.Body).Decode(&limited); err != nil {
		t.Fatalf("decode limited: %v", err)
	}
	if len(limited.Messages) != 2 || limited.Messages[0].MessageID != "m4" || limited.Messages[1].MessageID != "m5" {
		t.Fatalf("unexpected limited history: %+v", limited.Messages)
	}

	badResp, err := http.Get(ts.URL + "/events/E1/messages?limit=zero")
	if err != nil {
		t.Fatalf("bad limit: %v", err)
	}
	badResp.Body.Close()
	if badResp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit: status %d, want 400", badResp.StatusCode)
	}

	ghostResp, err := http.Get(ts.URL + "/events/nope/messages")
	if err != nil {
		t.Fatalf("ghost history: %v", err)
	}
	ghostResp.Body.Close()
	if ghostResp.StatusCode != http.StatusNotFound {
		t.Fatalf("ghost event history: status %d, want 404", ghostResp.StatusCode)
	}
}
