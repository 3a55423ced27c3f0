// Package server defines the wire envelope and event payloads exchanged with
// clients, plus utility helpers reused across client and hub logic.
package server

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Tyrowin/presence-gateway/internal/presence"
)

// Event names carried in the envelope.
const (
	EventClientsUpdated    = "clients-updated"
	EventMessageFromClient = "message-from-client"
	EventMessageFromServer = "message-from-server"
)

// Envelope is the JSON frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is the payload of message-from-client.
type ClientMessage struct {
	Message string `json:"message"`
}

// ServerMessage is the payload of message-from-server.
type ServerMessage struct {
	FullName string `json:"fullName"`
	Message  string `json:"message"`
}

// inboundMessage is a chat message handed from a read pump to the hub.
type inboundMessage struct {
	client *Client
	text   string
}

func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

func encodeClientsUpdated(entries []presence.Entry) ([]byte, error) {
	if entries == nil {
		entries = []presence.Entry{}
	}
	return encodeEvent(EventClientsUpdated, entries)
}

func encodeServerMessage(fullName, message string) ([]byte, error) {
	return encodeEvent(EventMessageFromServer, ServerMessage{FullName: fullName, Message: message})
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
