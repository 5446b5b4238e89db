// ABOUTME: Package documentation for upstream
// ABOUTME: Describes the external provider clients

// Package upstream holds the HTTP clients for the external providers the
// tool pack depends on: place search and detail, third-party reviews,
// domain-scoped content search, and the vision model.
package upstream
