package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/chatroom/internal/room"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// validRoomName reports whether name may be used as a room name. Room names
// follow the same alphabet as connection identities.
func validRoomName(name string) bool {
	return room.ValidIdentity(name)
}

// WebSocketHandler returns the handler for /ws?room=<name>&id=<identity>. It
// validates the request, upgrades it and registers the new client with h.
func WebSocketHandler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		roomName := r.URL.Query().Get("room")
		if roomName == "" {
			roomName = currentConfig().Room.DefaultRoom
		}
		if !validRoomName(roomName) {
			http.Error(w, "Invalid room name.", http.StatusBadRequest)
			return
		}
		requestedID := r.URL.Query().Get("id")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			zap.L().Info("WebSocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
			return
		}

		client := NewClient(conn, h, r.RemoteAddr, roomName, requestedID)

		// The hub starts the pump goroutines once the client is registered.
		if !h.Register(client) {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			_ = conn.Close()
		}
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chatroom server is running!")
}

// TestPageHandler serves an HTML page for trying the room protocol from a
// browser: join a room, send text, react and watch every frame.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		zap.L().Debug("Error writing HTML response", zap.Error(err))
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>Chatroom Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #frames {
            border: 1px solid #ccc;
            height: 320px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            font-family: monospace;
            font-size: 12px;
        }
        input[type="text"] { width: 220px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        button:disabled { background-color: #999; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Chatroom Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="room" placeholder="Room" value="main">
        <input type="text" id="name" placeholder="Display name">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div style="margin-top: 10px">
        <input type="text" id="text" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendText()" disabled>Send</button>
        <button id="reactButton" onclick="reactLast()" disabled>React to last</button>
    </div>

    <div id="frames"></div>

    <script>
        let ws = null;
        let lastMessageId = null;
        const framesDiv = document.getElementById('frames');
        const statusDiv = document.getElementById('status');
        const controls = ['text', 'sendButton', 'reactButton'].map(id => document.getElementById(id));

        function log(line, color) {
            const el = document.createElement('div');
            el.style.color = color || 'gray';
            el.textContent = line;
            framesDiv.appendChild(el);
            framesDiv.scrollTop = framesDiv.scrollHeight;
        }

        function setConnected(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            controls.forEach(el => el.disabled = !connected);
            document.getElementById('connectButton').textContent = connected ? 'Disconnect' : 'Connect';
        }

        function send(frame) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify(frame));
                log('> ' + JSON.stringify(frame), 'blue');
            }
        }

        function connect() {
            const room = encodeURIComponent(document.getElementById('room').value || 'main');
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws?room=' + room);

            ws.onopen = function() {
                setConnected(true);
                const name = document.getElementById('name').value || 'guest';
                send({ type: 'clientAction', action: 'join', name: name });
            };
            ws.onmessage = function(event) {
                const frame = JSON.parse(event.data);
                if (frame.type === 'text' || frame.type === 'media') {
                    lastMessageId = frame.id;
                }
                log('< ' + event.data, frame.action === 'error' ? 'red' : 'green');
            };
            ws.onclose = function() {
                log('Connection closed');
                setConnected(false);
                ws = null;
            };
            ws.onerror = function() {
                log('Connection error', 'red');
            };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendText() {
            const input = document.getElementById('text');
            const text = input.value.trim();
            if (text) {
                send({ type: 'text', text: text });
                input.value = '';
            }
        }

        function reactLast() {
            if (lastMessageId) {
                send({ type: 'clientAction', action: 'react', targetMessageId: lastMessageId, reaction: '👍' });
            }
        }

        document.getElementById('text').addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendText();
            }
        });
    </script>
</body>
</html>`
