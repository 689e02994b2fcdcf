// Package invalidate provides the two interchangeable freshness strategies
// for cached translation units. The passive Revalidator re-checks the
// fingerprint of the unit's source file and of every recorded dependency on
// each request. The active Watcher subscribes to filesystem notifications for
// every known input file and conservatively clears the whole cache when any
// of them changes, so a fresh request after a relevant change never observes
// stale compiled output. Both satisfy the same Strategy contract; selection
// happens once at configuration time.
package invalidate
