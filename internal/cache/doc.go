// Package cache defines the disk-backed bucket store behind the offline app
// shell. A Store holds named buckets (StoragePath/<bucket>/), each bucket maps
// a request identity (method + absolute URL) to a captured response stored as
// <sha1>.body plus a <sha1>.json metadata file with status and headers.
// Writes use temp file + rename so a reader never observes a half-written
// entry, and the metadata file is renamed last so its presence marks the
// entry complete. The worker package depends on this package for install,
// eviction and fetch fallback without touching the filesystem directly.
package cache
