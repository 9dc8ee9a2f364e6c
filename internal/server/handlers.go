// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Relay is running!")
}

// WebSocketHandler returns a handler that upgrades GET requests from allowed
// origins and runs the resulting Client against hub.
func WebSocketHandler(hub *Hub, cfg Config) http.HandlerFunc {
	cfg = cfg.sanitized()
	policy := newOriginPolicy(cfg.AllowedOrigins)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.checkOrigin,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr, cfg)
		go client.Run()
	}
}

// TestPageHandler serves a minimal browser client for the WebSocket front end.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		log.Printf("Error writing HTML response: %v", err)
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>Relay Chat</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; }
        #typing { color: gray; font-style: italic; min-height: 1.2em; }
        .system { color: gray; }
    </style>
</head>
<body>
    <h1>Relay Chat</h1>
    <div>
        <input type="text" id="nickname" placeholder="Nickname">
        <button id="joinButton" onclick="join()">Join</button>
    </div>
    <div id="messages"></div>
    <div id="typing"></div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
    </div>

    <script>
        let ws = null;
        let typing = false;
        const typers = new Set();
        const messages = document.getElementById('messages');
        const input = document.getElementById('messageInput');
        const typingDiv = document.getElementById('typing');

        function add(text, cls) {
            const el = document.createElement('div');
            el.textContent = text;
            if (cls) el.className = cls;
            messages.appendChild(el);
            messages.scrollTop = messages.scrollHeight;
        }

        function renderTyping() {
            typingDiv.textContent = typers.size ? Array.from(typers).join(', ') + ' typing...' : '';
        }

        function send(record) {
            if (ws && ws.readyState === WebSocket.OPEN) ws.send(JSON.stringify(record));
        }

        function join() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = () => {
                send({type: 'join', nickname: document.getElementById('nickname').value});
                input.disabled = false;
            };
            ws.onmessage = (event) => {
                const msg = JSON.parse(event.data);
                if (msg.type === 'system') add('** ' + msg.text + ' **', 'system');
                if (msg.type === 'chat') { typers.delete(msg.nickname); add(msg.nickname + ': ' + msg.text); }
                if (msg.type === 'typing') typers.add(msg.nickname);
                if (msg.type === 'stopped') typers.delete(msg.nickname);
                renderTyping();
            };
            ws.onclose = () => { add('Disconnected from server.', 'system'); input.disabled = true; };
        }

        input.addEventListener('input', () => {
            if (input.value && !typing) { typing = true; send({type: 'typing'}); }
            if (!input.value && typing) { typing = false; send({type: 'stopped'}); }
        });

        input.addEventListener('keypress', (e) => {
            if (e.key !== 'Enter' || !input.value) return;
            send({type: 'message', text: input.value});
            add('You: ' + input.value);
            input.value = '';
            if (typing) { typing = false; send({type: 'stopped'}); }
        });
    </script>
</body>
</html>`
