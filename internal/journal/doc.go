// Package journal keeps a SQLite record of loading sessions: the asset, the
// reported duration and track count, each declared track with its
// negotiated output, decoder names, and the terminal status.
//
// Listener wraps an assetloader.Listener and writes events as they arrive.
// Journal writes never fail a session; errors are logged and dropped.
//
// Like the queue database it descends from, the journal is disposable.
// Schema changes bump schemaVersion in schema.go and users delete the file.
package journal
