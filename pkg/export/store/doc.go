// Package store holds the raw records that exports read.
//
// Two backends implement Store: SQLiteStore, whose schema is versioned with
// embedded golang-migrate migrations, and MemoryStore. Both resolve
// references for the mapper, matching a record ID first and then the newest
// record with that source URN.
//
// Raw records also arrive as JSONL files (optionally lz4-compressed). Numbers
// inside attributes decode as json.Number so 64-bit inode and pid values keep
// their precision until the mapper coerces them:
//
//	{"id":"r1","kind":"StatEntry","timestamp":1700000000000000,"client":{"urn":"aff4:/C.1"},"attributes":{"st_size":1024}}
//
// Source and FileSource adapt a store query or a file to export.Source for
// the batch exporter.
package store
