// Package blob provides artifact backends for table persistence.
//
// Every backend stores opaque byte artifacts under flat string keys:
//
//   - [FS]: one file per artifact in a directory; each artifact is replaced
//     atomically by writing a temporary file and renaming it.
//   - [Bolt]: a bbolt database; all artifacts of one PutAll share a transaction.
//   - [Badger]: a BadgerDB store; all artifacts of one PutAll share a transaction.
//   - [S3]: an S3-compatible object store; each object put is atomic.
//   - [Memory]: an in-process map, for tests and ephemeral deployments.
package blob
