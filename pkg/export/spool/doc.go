// Package spool exports raw record files dropped into a directory.
//
// Producers write "*.jsonl" (optionally ".jsonl.lz4") files of raw records
// into the spool directory. The Watcher notices them through fsnotify,
// waits until a file has been quiet for the debounce interval, hands it to
// a Handler and moves it to done/ or, with an ".error" note, to failed/.
// Files present at startup are handled first, in name order.
//
// ExportHandler runs each file through a batch exporter and can tee the
// records into the record store on the way.
package spool
