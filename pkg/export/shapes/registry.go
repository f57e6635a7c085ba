package shapes

import (
	"mercator-hq/exporter/pkg/export"
	"mercator-hq/exporter/pkg/export/schema"
)

var nestedPathspec = schema.Omission{
	Path:   "pathspec.nested_path",
	Reason: "recursive path specification",
}

// entry binds a kind to its shape in the table below.
type entry struct {
	kind    export.Kind
	proto   export.Record
	version int
	omitted []schema.Omission
}

// table is the static kind to shape mapping. Bump version when a field is
// added to a shape; fields are never removed or retyped.
var table = []entry{
	{export.KindStatEntry, ExportedFile{}, 2, []schema.Omission{nestedPathspec}},
	{export.KindRegistryKey, ExportedRegistryKey{}, 1, []schema.Omission{nestedPathspec}},
	{export.KindProcess, ExportedProcess{}, 2, nil},
	{export.KindNetworkConnection, ExportedNetworkConnection{}, 1, nil},
	{export.KindOpenFile, ExportedOpenFile{}, 1, nil},
	{export.KindNetworkInterface, ExportedNetworkInterface{}, 1, []schema.Omission{
		{Path: "addresses", Reason: "split into ip4_addresses and ip6_addresses by the collector"},
	}},
	{export.KindDNSClientConfiguration, ExportedDNSClientConfiguration{}, 1, nil},
	{export.KindClientSummary, ExportedClient{}, 1, nil},
	{export.KindSoftware, ExportedSoftware{}, 1, nil},
	{export.KindAnomaly, ExportedAnomaly{}, 1, nil},
	{export.KindCheckResult, ExportedCheckResult{}, 1, nil},
	{export.KindBufferReference, ExportedMatch{}, 1, []schema.Omission{nestedPathspec}},
	{export.KindDataBlob, ExportedBytes{}, 1, nil},
	{export.KindString, ExportedString{}, 1, nil},
	{export.KindFileStoreHash, ExportedFileStoreHash{}, 1, nil},
	{export.KindArtifactFilesDownloaderResult, ExportedArtifactFilesDownloaderResult{}, 1, []schema.Omission{
		{Path: "original_result", Reason: "opaque payload; exported through original_file or original_registry_key"},
	}},
	{export.KindRekallProcess, ExportedRekallProcess{}, 1, nil},
	{export.KindRekallWindowsLoadedModule, ExportedRekallWindowsLoadedModule{}, 1, nil},
	{export.KindWindowsHandle, ExportedWindowsHandle{}, 1, nil},
	{export.KindLinuxSyscallTableEntry, ExportedLinuxSyscallTableEntry{}, 1, nil},
	{export.KindRekallLinuxTask, ExportedRekallLinuxTask{}, 1, nil},
	{export.KindRekallLinuxTaskOp, ExportedRekallLinuxTaskOp{}, 1, nil},
	{export.KindRekallLinuxProcOp, ExportedRekallLinuxProcOp{}, 1, nil},
	{export.KindRekallKernelObject, ExportedRekallKernelObject{}, 1, nil},
	{export.KindYaraProcessScanMatch, ExportedYaraProcessScanMatch{}, 1, nil},
}

// Register adds every shape in the table to reg.
func Register(reg *schema.Registry) error {
	for _, e := range table {
		if err := reg.Register(e.kind, e.proto, e.version, e.omitted...); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding every shape.
func NewRegistry() (*schema.Registry, error) {
	reg := schema.NewRegistry()
	if err := Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// MustRegistry is like NewRegistry but panics if the table is invalid.
func MustRegistry() *schema.Registry {
	reg, err := NewRegistry()
	if err != nil {
		panic(err)
	}
	return reg
}
