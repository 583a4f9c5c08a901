// Package server hosts the HTTP layer: the WebSocket relay endpoint with its
// upgrade gates (origin, connection limits, handshake credential), and the
// health and metrics endpoints.
package server
