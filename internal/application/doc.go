// Package application turns a loaded config.Config into a running server:
// preloaded documents go into storage, the resolver gets the configured
// delimiters, and the API router is mounted under /api/ with optional
// Prometheus instrumentation.
package application
