package server_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/Tyrowin/relaychat/internal/testhelpers"
)

// startMixedRelay runs the TCP relay and the HTTP front end on one hub.
func startMixedRelay(t *testing.T) (*server.Server, string, string) {
	t.Helper()
	cfg := server.NewConfig()
	cfg.RateLimit.Burst = 1000
	srv, tcpAddr := startRelay(t, cfg)

	testServer := httptest.NewServer(server.SetupRoutes(srv.Hub(), cfg))
	t.Cleanup(testServer.Close)

	return srv, tcpAddr, testhelpers.BuildWebSocketURL(testServer.URL)
}

func connectWeb(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, err := testhelpers.ConnectWebSocket(url)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func expectRecord(t *testing.T, conn *websocket.Conn, want map[string]string) {
	t.Helper()
	got, err := testhelpers.ReceiveRecord(conn)
	if err != nil {
		t.Fatalf("Expected record %v, got error: %v", want, err)
	}
	if len(got) != len(want) {
		t.Fatalf("Expected record %v, got %v", want, got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("Expected record %v, got %v", want, got)
		}
	}
}

// TestWebAndLinePeersShareRelay tests that browser and TCP peers see each
// other's joins, chat and typing signals in their own encodings.
func TestWebAndLinePeersShareRelay(t *testing.T) {
	srv, tcpAddr, wsURL := startMixedRelay(t)

	alice := testhelpers.Join(t, tcpAddr, prompt, "alice")
	testhelpers.WaitFor(t, "alice to join", func() bool { return srv.Hub().Count() == 1 })

	web := connectWeb(t, wsURL)
	if err := web.WriteJSON(map[string]string{"type": "join", "nickname": "webby"}); err != nil {
		t.Fatalf("Failed to send join: %v", err)
	}
	alice.ExpectLine("** webby joined the chat **\n")

	alice.Send("\x01TYPING\n")
	expectRecord(t, web, map[string]string{"type": "typing", "nickname": "alice"})
	alice.Send("hi web\n")
	expectRecord(t, web, map[string]string{"type": "chat", "nickname": "alice", "text": "hi web"})
	alice.Send("\x01STOPPED\n")
	expectRecord(t, web, map[string]string{"type": "stopped", "nickname": "alice"})

	if err := web.WriteJSON(map[string]string{"type": "typing"}); err != nil {
		t.Fatal(err)
	}
	alice.ExpectLine("\x01TYPING:webby\n")
	if err := web.WriteJSON(map[string]string{"type": "message", "text": "hi tcp"}); err != nil {
		t.Fatal(err)
	}
	alice.ExpectLine("webby: hi tcp\n")

	if err := testhelpers.CloseWebSocket(web); err != nil {
		t.Fatalf("Failed to close WebSocket: %v", err)
	}
	alice.ExpectLine("** webby left the chat **\n")

	bob := testhelpers.Join(t, tcpAddr, prompt, "bob")
	alice.ExpectLine("** bob joined the chat **\n")
	bob.Send("bye\n")
	alice.ExpectLine("bob: bye\n")
}

// TestWebSystemRecords tests the structured join and leave notices sent to
// browsers.
func TestWebSystemRecords(t *testing.T) {
	srv, tcpAddr, wsURL := startMixedRelay(t)

	web := connectWeb(t, wsURL)
	if err := web.WriteJSON(map[string]string{"type": "join", "nickname": "webby"}); err != nil {
		t.Fatal(err)
	}
	testhelpers.WaitFor(t, "webby to join", func() bool { return srv.Hub().Count() == 1 })

	alice := testhelpers.Join(t, tcpAddr, prompt, "alice")
	expectRecord(t, web, map[string]string{"type": "system", "text": "alice joined the chat"})

	_ = alice.Conn.Close()
	expectRecord(t, web, map[string]string{"type": "system", "text": "alice left the chat"})
}

// TestWebMessagesBeforeJoinIgnored tests that a browser cannot relay before
// joining and that leaving without joining is silent.
func TestWebMessagesBeforeJoinIgnored(t *testing.T) {
	srv, tcpAddr, wsURL := startMixedRelay(t)

	alice := testhelpers.Join(t, tcpAddr, prompt, "alice")
	testhelpers.WaitFor(t, "alice to join", func() bool { return srv.Hub().Count() == 1 })

	web := connectWeb(t, wsURL)
	for _, rec := range []map[string]string{
		{"type": "message", "text": "sneaky"},
		{"type": "typing"},
		{"type": "bogus"},
	} {
		if err := web.WriteJSON(rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := web.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	alice.ExpectNoLine(200 * time.Millisecond)

	_ = web.Close()
	alice.ExpectNoLine(200 * time.Millisecond)
	if srv.Hub().Count() != 1 {
		t.Errorf("Expected 1 member, got %d", srv.Hub().Count())
	}
}

// TestWebSocketOriginRejected tests that disallowed origins cannot upgrade.
func TestWebSocketOriginRejected(t *testing.T) {
	_, _, wsURL := startMixedRelay(t)

	headers := http.Header{}
	headers.Set("Origin", "http://evil.example")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, headers)
	if resp != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	if err == nil {
		_ = conn.Close()
		t.Fatal("Expected upgrade from a disallowed origin to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 response, got %v", resp)
	}
}

// TestWebSocketHandlerRejectsNonGet tests the method guard.
func TestWebSocketHandlerRejectsNonGet(t *testing.T) {
	handler := server.WebSocketHandler(server.NewHub(), *server.NewConfig())
	req := httptest.NewRequest(http.MethodPost, "/ws", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected %d, got %d", http.StatusMethodNotAllowed, rr.Code)
	}
}

// TestHealthAndTestPage tests the plain HTTP routes.
func TestHealthAndTestPage(t *testing.T) {
	mux := server.SetupRoutes(server.NewHub(), nil)

	tests := []struct {
		path        string
		contentType string
	}{
		{path: "/", contentType: "text/plain"},
		{path: "/test", contentType: "text/html; charset=utf-8"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))
			if rr.Code != http.StatusOK {
				t.Errorf("Expected 200, got %d", rr.Code)
			}
			if ct := rr.Header().Get("Content-Type"); ct != tt.contentType {
				t.Errorf("Expected content type %q, got %q", tt.contentType, ct)
			}
		})
	}
}

// TestCreateServer tests the HTTP server timeouts.
func TestCreateServer(t *testing.T) {
	mux := http.NewServeMux()
	srv := server.CreateServer(":8080", mux)
	if srv.Addr != ":8080" || srv.Handler != mux {
		t.Error("Server address or handler not set correctly")
	}
	if srv.ReadTimeout != 15*time.Second || srv.WriteTimeout != 15*time.Second || srv.IdleTimeout != 60*time.Second {
		t.Errorf("Unexpected timeouts: %v %v %v", srv.ReadTimeout, srv.WriteTimeout, srv.IdleTimeout)
	}
}

