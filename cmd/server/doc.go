// Package main is the entry point for the LingoLens server.
//
// The server renders third-party web pages translatable in place. Three parts
// cooperate:
//
//	Browser pane → Rewriting proxy (fetch, rewrite, inject bootstrap)
//	             → Pane WebSocket → In-page engine (per-document)
//	             → Host orchestrator → Translation / AI services
//
// The server provides:
//   - GET /proxy: the HTML/CSS rewriting proxy
//   - GET /stream: per-pane engine sessions
//   - GET /events: pane event stream for the host shell
//   - REST routes for pane control and the saved-page library
//   - Prometheus metrics and health checks
//
// Configuration comes from environment variables, optionally overlaid by a
// YAML file given with -config.
//
// Usage:
//
//	./server -config lingolens.yaml
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown
package main
