// Package cache holds the process-wide mapping from resolved source path to
// its TranslationUnit: the compiled registration code, the ordered dependency
// list produced by the same compiler invocation, and the fingerprints the
// invalidation strategies compare against. Units are immutable once stored
// and replaced wholesale, so readers never observe a half-written entry.
// Fill coalesces concurrent compilations of the same path onto a single
// producer call; every waiter receives the same outcome.
package cache
