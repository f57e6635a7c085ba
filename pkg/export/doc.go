// Package export defines the data model for turning internal raw records into
// flat, versioned Exported* records.
//
// # Records
//
// A RawRecord carries a Kind, a ClientSnapshot and a map of already-decoded
// attributes. The mapper (package mapper) looks the kind up in the schema
// registry (package schema), builds an ExportedMetadata block from the client
// snapshot and fills the variant fields of the registered shape (package
// shapes).
//
// Every exported record embeds exactly one ExportedMetadata by value. Nested
// exported records carry their own copy.
//
// # Optional Fields
//
// Variant fields are declared as Opt[T]. An absent Opt is omitted from JSON
// output, so a reader can tell "not collected" from "collected and zero":
//
//	size, ok := file.StSize.Get()
//	if !ok {
//		// size was not collected
//	}
//
// # Options
//
// Options gate which fields are populated. Start from DefaultOptions, which
// exports hashes but not file contents:
//
//	opts := export.DefaultOptions()
//	opts.ExportFilesContents = true
//	opts.Annotations = []string{"case-1234"}
//
// # Errors
//
// SchemaMismatchError and FieldCoercionError fail a single record.
// ReferenceResolutionError is reported as a warning. ErrorKind maps any error
// to the vocabulary used in batch reports.
package export
