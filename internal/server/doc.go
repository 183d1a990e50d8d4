// Package server implements the HTTP and WebSocket transport of the chat room
// service.
//
// The hub keeps a registry of rooms, created on first use, and of the live
// clients. Each client runs a read pump that forwards frames to its room and a
// write pump that drains frames the room queued for it. Configuration, origin
// checks, rate limiting, routing and server lifecycle live in their own files.
package server
