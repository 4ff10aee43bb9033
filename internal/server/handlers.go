package server

import (
	"fmt"
	"net/http"
)

// handleWebSocket upgrades the HTTP connection and hands it to the hub, which
// starts the client's pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	client := s.hub.NewClient(conn, r.RemoteAddr)
	s.hub.Register(client)
}

// handleWelcome answers the root route with the service banner.
func (s *Server) handleWelcome(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "Welcome to Chat Now")
}

// handleTestPage serves a small HTML page for exercising the event protocol
// by hand: setup, join chat, typing, and new message.
func (s *Server) handleTestPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		s.log.Warn("error writing test page", "error", err)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Chat Now WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #log { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background: #f9f9f9; }
        input[type="text"] { width: 220px; padding: 5px; margin-right: 6px; }
        button { padding: 5px 12px; }
    </style>
</head>
<body>
    <h1>Chat Now WebSocket Test</h1>
    <div>
        <input type="text" id="userId" placeholder="user id">
        <button onclick="send('setup', userId.value)">setup</button>
        <input type="text" id="chatId" placeholder="chat id">
        <button onclick="send('join chat', chatId.value)">join chat</button>
        <button onclick="send('typing', chatId.value)">typing</button>
        <button onclick="send('stop typing', chatId.value)">stop typing</button>
    </div>
    <div id="log"></div>
    <script>
        const log = document.getElementById('log');
        const userId = document.getElementById('userId');
        const chatId = document.getElementById('chatId');
        const ws = new WebSocket('ws://' + location.host + '/ws');
        function append(text) {
            const el = document.createElement('div');
            el.textContent = text;
            log.appendChild(el);
            log.scrollTop = log.scrollHeight;
        }
        ws.onopen = () => append('connected to server');
        ws.onclose = () => append('connection closed');
        ws.onmessage = (e) => append('<< ' + e.data);
        function send(event, payload) {
            const frame = JSON.stringify({event: event, payload: payload});
            ws.send(frame);
            append('>> ' + frame);
        }
    </script>
</body>
</html>`
