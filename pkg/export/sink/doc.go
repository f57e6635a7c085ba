// Package sink writes exported records to their destinations.
//
// Every sink implements export.Sink. The file sinks (JSON, JSON lines, CSV)
// compress their output with lz4 when the configured path ends in ".lz4".
// The SQLite sink keeps one table per shape and the AMQP sink publishes one
// message per record, routed by shape name.
//
// Open builds a sink from configuration and wraps it with Instrument, which
// adds write metrics and an "export.sink.write" span. Multi fans out to
// several sinks and Collect keeps records in memory.
package sink
