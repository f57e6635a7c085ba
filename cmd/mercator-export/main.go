// Mercator Export normalizes raw records collected from endpoints into the
// flat, versioned Exported* schema and delivers them to configured sinks.
//
// Usage:
//
//	# Export raw records from JSONL files to a file sink
//	mercator-export export --input records.jsonl --out export.jsonl.lz4
//
//	# Export from the record store through configured sinks
//	mercator-export export --from-store --kind Process --sink siem
//
//	# List the export schema
//	mercator-export schema list
//
//	# Snapshot this host into the record store
//	mercator-export collect
//
//	# Run scheduled jobs, the spool watcher and retention
//	mercator-export run --config export.yaml
package main

func main() {
	Execute()
}
