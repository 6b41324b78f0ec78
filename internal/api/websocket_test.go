package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return websocket.DefaultDialer.Dial(url, header)
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := dialWS(t, srv, "")
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	waitClients(t, s.hub, 1)

	s.hub.Broadcast(ProgressMessage{Type: "progress", JobID: "job-1", Done: 1, Total: 2, Progress: 50})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg ProgressMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "progress" || msg.JobID != "job-1" || msg.Progress != 50 {
		t.Errorf("message = %+v", msg)
	}
	if _, err := time.Parse(time.RFC3339, msg.Timestamp); err != nil {
		t.Errorf("timestamp %q: %v", msg.Timestamp, err)
	}

	conn.Close()
	waitClients(t, s.hub, 0)
}

func TestWebSocketJobProgress(t *testing.T) {
	s := newTestServer(t, nil)
	writeJobBundle(t, s, "lesson.tar.xz")
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := dialWS(t, srv, "")
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	waitClients(t, s.hub, 1)

	status, job, _ := postJob(t, s.Handler(), `{"input":"lesson.tar.xz","shift":"to D"}`)
	if status != http.StatusAccepted {
		t.Fatalf("status = %d", status)
	}

	var types []string
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed after %v: %v", types, err)
		}
		var msg ProgressMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.JobID != job.ID {
			t.Errorf("message for job %s, want %s", msg.JobID, job.ID)
		}
		types = append(types, msg.Type)
		if msg.Type != "progress" {
			break
		}
	}
	if want := "progress,progress,complete"; strings.Join(types, ",") != want {
		t.Errorf("messages = %v, want %s", types, want)
	}
}

func TestWebSocketOrigin(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.AllowedOrigins = []string{"https://app.example.com"} })
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := dialWS(t, srv, "https://app.example.com")
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	conn.Close()

	_, resp, err := dialWS(t, srv, "https://evil.example.com")
	if err == nil {
		t.Fatal("disallowed origin accepted")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v", resp)
	}
}

func TestHubStop(t *testing.T) {
	h := NewHub()
	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()

	h.Broadcast(ProgressMessage{Type: "progress"})
	h.Stop()
	h.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
