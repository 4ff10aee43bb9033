// Package server implements the HTTP and WebSocket surface of the Chat Now
// backend.
//
// The implementation is organized into specialized files for server
// construction, origin policy, and request handlers to keep the codebase
// maintainable and testable as the project grows.
package server
