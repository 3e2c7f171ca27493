// Package backend is the Soundbay API server: uploads and transcoding,
// moderation, the social graph, playlists, notifications and search.
//
// The binaries live under cmd/:
//
//   - cmd/server: the HTTP and websocket API
//   - cmd/soundbay: the admin CLI (migrate, seed, moderation, reindex)
//
// Most of the code is organized into internal subpackages:
//
//   - internal/kernel: builds the service graph shared by both binaries
//   - internal/handlers: HTTP request handlers for all API endpoints
//   - internal/models: Data models and database schemas
//   - internal/repository: Data access
//   - internal/auth: Passwords, JWTs, TOTP and OAuth login
//   - internal/queue: The transcode worker pool
//   - internal/audio: ffmpeg probing and transcoding
//   - internal/waveform: Waveform peaks and images
//   - internal/moderation: Approve and reject decisions
//   - internal/notifications: Notification fan-out and pruning
//   - internal/websocket: Real-time delivery
//   - internal/search: Elasticsearch indexing with a database fallback
//   - internal/storage: Local and S3 object storage
//   - internal/cache: Redis or in-memory cache
//   - internal/email: SES or logged email
//   - internal/middleware: Auth, rate limiting, logging, tracing and metrics
package backend
