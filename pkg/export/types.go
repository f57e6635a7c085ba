package export

import (
	"context"
	"time"
)

// Kind identifies the variant of a raw record. Each registered kind maps to
// exactly one Exported* shape.
type Kind string

// Registered raw record kinds.
const (
	KindStatEntry                     Kind = "StatEntry"
	KindRegistryKey                   Kind = "RegistryKey"
	KindProcess                       Kind = "Process"
	KindNetworkConnection             Kind = "NetworkConnection"
	KindOpenFile                      Kind = "OpenFile"
	KindNetworkInterface              Kind = "NetworkInterface"
	KindDNSClientConfiguration        Kind = "DNSClientConfiguration"
	KindClientSummary                 Kind = "ClientSummary"
	KindSoftware                      Kind = "Software"
	KindAnomaly                       Kind = "Anomaly"
	KindCheckResult                   Kind = "CheckResult"
	KindBufferReference               Kind = "BufferReference"
	KindDataBlob                      Kind = "DataBlob"
	KindString                        Kind = "String"
	KindFileStoreHash                 Kind = "FileStoreHash"
	KindArtifactFilesDownloaderResult Kind = "ArtifactFilesDownloaderResult"
	KindRekallProcess                 Kind = "RekallProcess"
	KindRekallWindowsLoadedModule     Kind = "RekallWindowsLoadedModule"
	KindWindowsHandle                 Kind = "WindowsHandle"
	KindLinuxSyscallTableEntry        Kind = "LinuxSyscallTableEntry"
	KindRekallLinuxTask               Kind = "RekallLinuxTask"
	KindRekallLinuxTaskOp             Kind = "RekallLinuxTaskOp"
	KindRekallLinuxProcOp             Kind = "RekallLinuxProcOp"
	KindRekallKernelObject            Kind = "RekallKernelObject"
	KindYaraProcessScanMatch          Kind = "YaraProcessScanMatch"

	// KindURN is a reference to another stored object. It has no shape of
	// its own and only produces output when FollowURNs is set.
	KindURN Kind = "URN"
)

// SystemLabelOwner owns the labels that are reported as system labels.
const SystemLabelOwner = "GRR"

// Timestamp is a point in time in microseconds since the Unix epoch. All
// exported timestamps use this unit regardless of the source unit.
type Timestamp int64

// TimestampOf converts t to a Timestamp.
func TimestampOf(t time.Time) Timestamp {
	return Timestamp(t.UnixMicro())
}

// Time converts the timestamp to a time.Time in UTC.
func (ts Timestamp) Time() time.Time {
	return time.UnixMicro(int64(ts)).UTC()
}

// Label is a client label with its owner.
type Label struct {
	Name  string `json:"name" yaml:"name"`
	Owner string `json:"owner,omitempty" yaml:"owner,omitempty"`
}

// HardwareInfo describes the client machine as reported by the agent.
type HardwareInfo struct {
	SerialNumber       string `json:"serial_number,omitempty"`
	SystemManufacturer string `json:"system_manufacturer,omitempty"`
	SystemProductName  string `json:"system_product_name,omitempty"`
	SystemUUID         string `json:"system_uuid,omitempty"`
	SystemSKUNumber    string `json:"system_sku_number,omitempty"`
	SystemFamily       string `json:"system_family,omitempty"`
	BIOSVendor         string `json:"bios_vendor,omitempty"`
	BIOSVersion        string `json:"bios_version,omitempty"`
	BIOSReleaseDate    string `json:"bios_release_date,omitempty"`
	BIOSROMSize        string `json:"bios_rom_size,omitempty"`
	BIOSRevision       string `json:"bios_revision,omitempty"`
}

// ClientSnapshot is the already-materialized state of the client a raw record
// was collected from.
type ClientSnapshot struct {
	URN           string        `json:"urn,omitempty"`
	Hostname      string        `json:"hostname,omitempty"`
	OS            string        `json:"os,omitempty"`
	FirstSeen     Timestamp     `json:"first_seen,omitempty"`
	Uname         string        `json:"uname,omitempty"`
	OSRelease     string        `json:"os_release,omitempty"`
	OSVersion     string        `json:"os_version,omitempty"`
	KernelVersion string        `json:"kernel_version,omitempty"`
	Usernames     []string      `json:"usernames,omitempty"`
	MACAddresses  []string      `json:"mac_addresses,omitempty"`
	Labels        []Label       `json:"labels,omitempty"`
	Hardware      *HardwareInfo `json:"hardware,omitempty"`
}

// RawRecord is an internal record as produced by collection. Attributes hold
// the variant-specific payload as decoded values (maps, slices, strings,
// numbers, json.Number, []byte, time.Time).
type RawRecord struct {
	ID         string         `json:"id"`
	Kind       Kind           `json:"kind"`
	SourceURN  string         `json:"source_urn,omitempty"`
	Timestamp  Timestamp      `json:"timestamp"`
	Client     ClientSnapshot `json:"client"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Options control how raw records are exported.
type Options struct {
	// ExportFilesContents includes byte content of file-like records.
	ExportFilesContents bool `json:"export_files_contents" yaml:"export_files_contents"`

	// FollowURNs resolves referenced objects and exports their targets.
	FollowURNs bool `json:"follow_urns" yaml:"follow_urns"`

	// ExportFilesHashes includes previously computed hashes. Hashes are
	// never computed during export.
	ExportFilesHashes bool `json:"export_files_hashes" yaml:"export_files_hashes"`

	// Annotations are attached to every record in the batch, in order.
	Annotations []string `json:"annotations,omitempty" yaml:"annotations,omitempty"`

	// FollowTimeout bounds each reference lookup.
	FollowTimeout time.Duration `json:"follow_timeout,omitempty" yaml:"follow_timeout,omitempty"`

	// MaxFollowDepth bounds transitive reference resolution.
	MaxFollowDepth int `json:"max_follow_depth,omitempty" yaml:"max_follow_depth,omitempty"`
}

// Default option values.
const (
	DefaultFollowTimeout  = 10 * time.Second
	DefaultMaxFollowDepth = 4
)

// DefaultOptions returns the default export options. Hashes are exported by
// default, contents and reference following are not.
func DefaultOptions() Options {
	return Options{
		ExportFilesHashes: true,
		FollowTimeout:     DefaultFollowTimeout,
		MaxFollowDepth:    DefaultMaxFollowDepth,
	}
}

// ExportedHardwareInfo is the hardware block of ExportedMetadata.
type ExportedHardwareInfo struct {
	SerialNumber       string `json:"serial_number,omitempty"`
	SystemManufacturer string `json:"system_manufacturer,omitempty"`
	SystemProductName  string `json:"system_product_name,omitempty"`
	SystemUUID         string `json:"system_uuid,omitempty"`
	SystemSKUNumber    string `json:"system_sku_number,omitempty"`
	SystemFamily       string `json:"system_family,omitempty"`
	BIOSVendor         string `json:"bios_vendor,omitempty"`
	BIOSVersion        string `json:"bios_version,omitempty"`
	BIOSReleaseDate    string `json:"bios_release_date,omitempty"`
	BIOSROMSize        string `json:"bios_rom_size,omitempty"`
	BIOSRevision       string `json:"bios_revision,omitempty"`
}

// ExportedMetadata is carried by every exported record, nested ones
// included. Label and annotation lists are comma-joined.
type ExportedMetadata struct {
	ClientURN         string               `json:"client_urn,omitempty"`
	Hostname          string               `json:"hostname,omitempty"`
	OS                string               `json:"os,omitempty"`
	ClientAge         Timestamp            `json:"client_age,omitempty"`
	Uname             string               `json:"uname,omitempty"`
	OSRelease         string               `json:"os_release,omitempty"`
	OSVersion         string               `json:"os_version,omitempty"`
	Usernames         string               `json:"usernames,omitempty"`
	MACAddress        string               `json:"mac_address,omitempty"`
	Timestamp         Timestamp            `json:"timestamp,omitempty"`
	OriginalTimestamp Timestamp            `json:"original_timestamp,omitempty"`
	Labels            string               `json:"labels,omitempty"`
	SystemLabels      string               `json:"system_labels,omitempty"`
	UserLabels        string               `json:"user_labels,omitempty"`
	SourceURN         string               `json:"source_urn,omitempty"`
	Annotations       string               `json:"annotations,omitempty"`
	HardwareInfo      ExportedHardwareInfo `json:"hardware_info,omitzero"`
	KernelVersion     string               `json:"kernel_version,omitempty"`

	// DeprecatedSessionID is kept so older readers can decode the block.
	// It is never written.
	DeprecatedSessionID Opt[string] `json:"deprecated_session_id,omitzero"`
}

// Record is an exported record of any shape.
type Record interface {
	ExportMetadata() ExportedMetadata
}

// Source produces raw records for export.
//
// Both channels are closed when the source is exhausted. The error channel
// carries at most one error.
type Source interface {
	Records(ctx context.Context) (<-chan RawRecord, <-chan error)
}

// Resolver looks up the raw record a reference points at.
type Resolver interface {
	Resolve(ctx context.Context, urn string) (*RawRecord, error)
}

// Sink receives exported records. Implementations must be safe for
// concurrent use.
type Sink interface {
	Write(ctx context.Context, shape string, record Record) error
	Close() error
}
