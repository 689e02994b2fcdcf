// Package server assembles the Fiber application around the translation
// handler: panic recovery, per-request IDs, the /-/status diagnostics route
// and the static-file fallback that serves pass-through requests and 404s.
// The translation handler is injected through the TranslateHandler interface
// so tests can substitute fakes.
package server
