package batch

import (
	"sort"

	"mercator-hq/exporter/pkg/export"
	"mercator-hq/exporter/pkg/export/mapper"
)

// SortRecords orders records by metadata original timestamp, then source
// URN. Batch output has no order of its own.
func SortRecords(records []export.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return lessMetadata(records[i].ExportMetadata(), records[j].ExportMetadata())
	})
}

// SortByOriginalTimestamp orders mapper outputs the same way as SortRecords,
// breaking ties by shape name.
func SortByOriginalTimestamp(outputs []mapper.Output) {
	sort.SliceStable(outputs, func(i, j int) bool {
		a, b := outputs[i].Record.ExportMetadata(), outputs[j].Record.ExportMetadata()
		if a.OriginalTimestamp == b.OriginalTimestamp && a.SourceURN == b.SourceURN {
			return outputs[i].Shape < outputs[j].Shape
		}
		return lessMetadata(a, b)
	})
}

func lessMetadata(a, b export.ExportedMetadata) bool {
	if a.OriginalTimestamp != b.OriginalTimestamp {
		return a.OriginalTimestamp < b.OriginalTimestamp
	}
	return a.SourceURN < b.SourceURN
}
