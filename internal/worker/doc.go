// Package worker implements the offline cache manager: a versioned worker that
// installs the app shell into its bucket, evicts stale buckets on activation,
// answers fetches network-first with cache and offline-page fallback, replays
// queued contact submissions on background sync, and shows push notifications.
//
// Every lifecycle and functional event goes through Worker.Dispatch, a table
// keyed by EventKind. Registration owns the active and waiting workers and
// decides which one an event is delivered to. Work derived from an event that
// outlives it (asynchronous cache writes) is tracked so Worker.Wait can block
// until it drains.
package worker
