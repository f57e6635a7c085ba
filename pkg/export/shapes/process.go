package shapes

import "mercator-hq/exporter/pkg/export"

// ExportedProcess is a process from a process listing.
type ExportedProcess struct {
	Metadata export.ExportedMetadata `json:"metadata"`

	PID           export.Opt[uint64]           `json:"pid,omitzero"`
	PPID          export.Opt[uint64]           `json:"ppid,omitzero"`
	Name          export.Opt[string]           `json:"name,omitzero"`
	Exe           export.Opt[string]           `json:"exe,omitzero"`
	Cmdline       export.Opt[string]           `json:"cmdline,omitzero" export:"join"`
	CTime         export.Opt[export.Timestamp] `json:"ctime,omitzero" export:"unit=us"`
	RealUID       export.Opt[int64]            `json:"real_uid,omitzero"`
	EffectiveUID  export.Opt[int64]            `json:"effective_uid,omitzero"`
	SavedUID      export.Opt[int64]            `json:"saved_uid,omitzero"`
	RealGID       export.Opt[int64]            `json:"real_gid,omitzero"`
	EffectiveGID  export.Opt[int64]            `json:"effective_gid,omitzero"`
	SavedGID      export.Opt[int64]            `json:"saved_gid,omitzero"`
	Username      export.Opt[string]           `json:"username,omitzero"`
	Terminal      export.Opt[string]           `json:"terminal,omitzero"`
	Status        export.Opt[string]           `json:"status,omitzero"`
	Nice          export.Opt[int64]            `json:"nice,omitzero"`
	Cwd           export.Opt[string]           `json:"cwd,omitzero"`
	NumThreads    export.Opt[uint64]           `json:"num_threads,omitzero"`
	UserCPUTime   export.Opt[float64]          `json:"user_cpu_time,omitzero"`
	SystemCPUTime export.Opt[float64]          `json:"system_cpu_time,omitzero"`
	RSSSize       export.Opt[uint64]           `json:"rss_size,omitzero"`
	VMSSize       export.Opt[uint64]           `json:"vms_size,omitzero"`
	MemoryPercent export.Opt[float64]          `json:"memory_percent,omitzero"`
}

func (r ExportedProcess) ExportMetadata() export.ExportedMetadata { return r.Metadata }

// ExportedYaraProcessScanMatch is a single YARA string match inside a
// process' memory.
type ExportedYaraProcessScanMatch struct {
	Metadata export.ExportedMetadata `json:"metadata"`

	Process        ExportedProcess    `json:"process,omitzero"`
	RuleName       export.Opt[string] `json:"rule_name,omitzero"`
	ScanTimeMicros export.Opt[uint64] `json:"process_scan_time_us,omitzero" export:"src=scan_time_us"`
	StringID       export.Opt[string] `json:"string_id,omitzero"`
	Offset         export.Opt[uint64] `json:"offset,omitzero"`
	Context        export.Opt[[]byte] `json:"context,omitzero"`
}

func (r ExportedYaraProcessScanMatch) ExportMetadata() export.ExportedMetadata { return r.Metadata }
