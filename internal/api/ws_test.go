package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kalambet/pathway/internal/profile"
)

type feedFrame struct {
	Type    string           `json:"type"`
	State   string           `json:"state"`
	Profile *profile.Profile `json:"profile"`
}

func dialFeed(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/profile?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", url, err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until match returns true or the deadline passes.
func readUntil(t *testing.T, conn *websocket.Conn, match func(feedFrame) bool) feedFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var f feedFrame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("reading feed: %v", err)
		}
		if f.Type != "session" {
			t.Fatalf("frame type = %q, want session", f.Type)
		}
		if match(f) {
			return f
		}
	}
}

func TestProfileFeed(t *testing.T) {
	a := setupApp(t)
	srv := httptest.NewServer(a.handler)
	defer srv.Close()

	token := a.signUp(t, "asha@example.com")
	conn := dialFeed(t, srv, token)

	f := readUntil(t, conn, func(f feedFrame) bool { return f.State == "authenticated" })
	if f.Profile == nil || f.Profile.Name != "asha@example.com" {
		t.Fatalf("first authenticated frame = %+v", f)
	}

	rr := a.do(t, http.MethodPatch, "/profile", `{"name":"Asha"}`, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("PATCH /profile = %d; body = %s", rr.Code, rr.Body.String())
	}
	readUntil(t, conn, func(f feedFrame) bool {
		return f.Profile != nil && f.Profile.Name == "Asha"
	})

	rr = a.do(t, http.MethodPost, "/auth/signout", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("signout = %d", rr.Code)
	}
	f = readUntil(t, conn, func(f feedFrame) bool { return f.State == "anonymous" })
	if f.Profile != nil {
		t.Errorf("anonymous frame carries a profile: %+v", f.Profile)
	}
}

func TestProfileFeed_RequiresToken(t *testing.T) {
	a := setupApp(t)
	srv := httptest.NewServer(a.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/profile"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial without a token to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}
