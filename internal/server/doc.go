// Package server implements the WebSocket presence and broadcast gateway.
//
// A connection is upgraded, authenticated against the bearer token carried in
// its handshake, registered in the presence registry, and then handed to the
// Hub, whose single event loop serialises joins, leaves and chat dispatch.
// Every membership change fans the full presence snapshot out to all
// authenticated connections; every chat message is broadcast to all of them,
// the sender included, so clients render one ordered stream.
//
// The implementation is organized into files for configuration, hub
// management, clients, handshake, routing, and HTTP handlers.
package server
