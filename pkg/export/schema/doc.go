// Package schema compiles Exported* struct definitions into shapes and keeps
// the registry that binds raw record kinds to them.
//
// A shape is declared as a plain Go struct. The first field is the metadata
// block; every other field is an export.Opt or a nested struct:
//
//	type ExportedFile struct {
//		Metadata export.ExportedMetadata `json:"metadata"`
//		Basename export.Opt[string]      `json:"basename,omitzero" export:"src=path,conv=basename"`
//		StSize   export.Opt[uint64]      `json:"st_size,omitzero"`
//		StMtime  export.Opt[export.Timestamp] `json:"st_mtime,omitzero" export:"unit=s"`
//	}
//
// Compile validates the declaration. Timestamp fields must declare their
// source unit, and option misuse (join on a number, enum on a bool) is
// rejected at registration time, not at export time.
//
// Shapes also provide the derived forms used by sinks: Columns and Flatten
// for row-oriented sinks, JSONSchema and Validate for checking records.
package schema
