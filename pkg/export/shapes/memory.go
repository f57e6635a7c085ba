package shapes

import "mercator-hq/exporter/pkg/export"

// ExportedRekallProcess is a process found by memory analysis.
type ExportedRekallProcess struct {
	Metadata export.ExportedMetadata `json:"metadata"`

	PID          export.Opt[uint64]           `json:"pid,omitzero"`
	ParentPID    export.Opt[uint64]           `json:"parent_pid,omitzero"`
	Name         export.Opt[string]           `json:"name,omitzero"`
	Fullpath     export.Opt[string]           `json:"fullpath,omitzero"`
	Commandline  export.Opt[string]           `json:"commandline,omitzero"`
	CreationTime export.Opt[export.Timestamp] `json:"creation_time,omitzero" export:"unit=us"`
	ExitTime     export.Opt[export.Timestamp] `json:"exit_time,omitzero" export:"unit=us"`
	IsWow64      export.Opt[bool]             `json:"is_wow64,omitzero"`
	TrustedPath  export.Opt[string]           `json:"trusted_fullpath,omitzero"`
}

func (r ExportedRekallProcess) ExportMetadata() export.ExportedMetadata { return r.Metadata }

// ExportedRekallWindowsLoadedModule is a module mapped into a process.
type ExportedRekallWindowsLoadedModule struct {
	Metadata export.ExportedMetadata `json:"metadata"`

	Process   ExportedRekallProcess `json:"process,omitzero"`
	Address   export.Opt[uint64]    `json:"address,omitzero"`
	Size      export.Opt[uint64]    `json:"size,omitzero"`
	Name      export.Opt[string]    `json:"name,omitzero" export:"src=image_path,conv=basename"`
	ImagePath export.Opt[string]    `json:"image_path,omitzero"`
	LdrPath   export.Opt[string]    `json:"ldr_path,omitzero" export:"src=image_path_ldr"`
}

func (r ExportedRekallWindowsLoadedModule) ExportMetadata() export.ExportedMetadata {
	return r.Metadata
}

// ExportedWindowsHandle is an open kernel handle of a process.
type ExportedWindowsHandle struct {
	Metadata export.ExportedMetadata `json:"metadata"`

	Process ExportedRekallProcess `json:"process,omitzero"`
	Address export.Opt[uint64]    `json:"address,omitzero"`
	Type    export.Opt[string]    `json:"type,omitzero"`
	Name    export.Opt[string]    `json:"name,omitzero"`
}

func (r ExportedWindowsHandle) ExportMetadata() export.ExportedMetadata { return r.Metadata }

// ExportedLinuxSyscallTableEntry is one slot of a kernel syscall table.
type ExportedLinuxSyscallTableEntry struct {
	Metadata export.ExportedMetadata `json:"metadata"`

	Table          export.Opt[string] `json:"table,omitzero"`
	Index          export.Opt[uint64] `json:"index,omitzero"`
	HandlerAddress export.Opt[uint64] `json:"handler_address,omitzero"`
	Symbol         export.Opt[string] `json:"symbol,omitzero"`
}

func (r ExportedLinuxSyscallTableEntry) ExportMetadata() export.ExportedMetadata {
	return r.Metadata
}

// ExportedRekallLinuxTask is a Linux task_struct found in memory.
type ExportedRekallLinuxTask struct {
	Metadata export.ExportedMetadata `json:"metadata"`

	Addr export.Opt[uint64] `json:"addr,omitzero"`
	PID  export.Opt[uint64] `json:"pid,omitzero"`
	Name export.Opt[string] `json:"name,omitzero"`
	DTB  export.Opt[uint64] `json:"dtb,omitzero"`
}

func (r ExportedRekallLinuxTask) ExportMetadata() export.ExportedMetadata { return r.Metadata }

// ExportedRekallLinuxTaskOp is a function pointer hooked in a task's
// file operations.
type ExportedRekallLinuxTaskOp struct {
	Metadata export.ExportedMetadata `json:"metadata"`

	Task           ExportedRekallLinuxTask `json:"task,omitzero"`
	Operation      export.Opt[string]      `json:"operation,omitzero"`
	HandlerAddress export.Opt[uint64]      `json:"handler_address,omitzero"`
	Module         export.Opt[string]      `json:"module,omitzero"`
	Symbol         export.Opt[string]      `json:"symbol,omitzero"`
}

func (r ExportedRekallLinuxTaskOp) ExportMetadata() export.ExportedMetadata { return r.Metadata }

// ExportedRekallLinuxProcOp is a function pointer in a /proc entry's
// file operations.
type ExportedRekallLinuxProcOp struct {
	Metadata export.ExportedMetadata `json:"metadata"`

	Fullpath       export.Opt[string] `json:"fullpath,omitzero"`
	Operation      export.Opt[string] `json:"operation,omitzero"`
	HandlerAddress export.Opt[uint64] `json:"handler_address,omitzero"`
	Module         export.Opt[string] `json:"module,omitzero"`
	Symbol         export.Opt[string] `json:"symbol,omitzero"`
}

func (r ExportedRekallLinuxProcOp) ExportMetadata() export.ExportedMetadata { return r.Metadata }

// ExportedRekallKernelObject is a named kernel object.
type ExportedRekallKernelObject struct {
	Metadata export.ExportedMetadata `json:"metadata"`

	Type export.Opt[string] `json:"type,omitzero"`
	Name export.Opt[string] `json:"name,omitzero"`
}

func (r ExportedRekallKernelObject) ExportMetadata() export.ExportedMetadata { return r.Metadata }
