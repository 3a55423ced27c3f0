// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ServeWS upgrades the request, authenticates the connection and, on success,
// hands it to the hub. The credential is checked after the upgrade so a
// rejected peer observes a closed WebSocket rather than an HTTP error.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	connID := g.newID()
	adm := g.authenticate(r.Context(), r, connID)
	if !adm.admitted() {
		g.rejectConnection(conn, connID, r.RemoteAddr, adm)
		return
	}

	client := newClient(conn, g.hub, adm.record, r.RemoteAddr, g.cfg, g.logger)
	if err := g.hub.Join(client); err != nil {
		g.registry.Deregister(connID)
		g.rejectConnection(conn, connID, r.RemoteAddr, rejected(outcomeShuttingDown, err))
		return
	}

	g.metrics.handshakes.WithLabelValues(outcomeAdmitted).Inc()
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Presence gateway is running!")
}

// healthzResponse is the JSON body of /healthz.
type healthzResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

// HealthzHandler reports liveness and the number of registered connections.
func (g *Gateway) HealthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(healthzResponse{
		Status:      "ok",
		Connections: g.registry.Len(),
	}); err != nil {
		g.logger.Warn().Err(err).Msg("Error writing healthz response")
	}
}

// TestPageHandler serves an HTML page for trying the gateway from a browser.
// Browsers cannot set handshake headers, so the page passes the token as a
// query parameter.
func (g *Gateway) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		g.logger.Warn().Err(err).Msg("Error writing HTML response")
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Presence Gateway Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #layout { display: flex; gap: 20px; }
        #messages, #clients {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        #messages { flex: 3; }
        #clients { flex: 1; }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Presence Gateway Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="tokenInput" placeholder="Bearer token">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <div id="layout">
        <div id="messages"></div>
        <ul id="clients"></ul>
    </div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const clientsList = document.getElementById('clients');
        const tokenInput = document.getElementById('tokenInput');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addLine(text, bold) {
            const el = document.createElement('div');
            el.style.margin = '5px 0';
            if (bold) {
                const strong = document.createElement('strong');
                strong.textContent = bold + ': ';
                el.appendChild(strong);
            }
            el.appendChild(document.createTextNode(text));
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function renderClients(clients) {
            clientsList.innerHTML = '';
            clients.forEach(function (c) {
                const li = document.createElement('li');
                li.textContent = c.fullName;
                li.title = c.id;
                clientsList.appendChild(li);
            });
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
            if (!connected) {
                renderClients([]);
            }
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            const token = encodeURIComponent(tokenInput.value.trim());
            ws = new WebSocket(scheme + location.host + '/ws?token=' + token);

            ws.onopen = function () {
                updateStatus(true);
            };

            ws.onmessage = function (event) {
                const frame = JSON.parse(event.data);
                if (frame.event === 'clients-updated') {
                    renderClients(frame.data);
                } else if (frame.event === 'message-from-server') {
                    addLine(frame.data.message, frame.data.fullName);
                }
            };

            ws.onclose = function (event) {
                addLine('Connection closed (' + event.code + ')');
                updateStatus(false);
                ws = null;
            };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendMessage() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({ event: 'message-from-client', data: { message: messageInput.value } }));
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function (e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
