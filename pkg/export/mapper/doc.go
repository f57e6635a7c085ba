// Package mapper converts raw records into Exported* records.
//
// Mapping is a pure function of the raw record, the export options and the
// clock. The only I/O is the resolver call made when Options.FollowURNs is
// set and a reference record is mapped:
//
//	m := mapper.New(shapes.MustRegistry(), mapper.WithResolver(store))
//	res, err := m.Map(ctx, &raw, export.DefaultOptions())
//	if err != nil {
//		// SchemaMismatchError or FieldCoercionError, this record only
//	}
//	for _, out := range res.Records {
//		sink.Write(ctx, out.Shape, out.Record)
//	}
//
// Field population follows the shape declaration: content fields need
// ExportFilesContents, hash fields need ExportFilesHashes, deprecated fields
// are never written, and list fields are joined in source order. A value
// that is missing from the raw record leaves the field absent.
package mapper
