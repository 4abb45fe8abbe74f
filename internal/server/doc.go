// Package server exposes the tracking broadcaster over HTTP: the WebSocket
// endpoint with its control-message read pump, health and stats endpoints,
// prometheus metrics, and connection limiting.
package server
