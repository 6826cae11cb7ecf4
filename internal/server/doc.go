// Package server implements the chat relay: a single room where every
// connected client broadcasts to every other, with nicknames and a bounded
// history replay on join.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, the room lifecycle, routing, and HTTP handlers to
// keep the codebase maintainable and testable as the project grows.
package server
