package shapes

import "mercator-hq/exporter/pkg/export"

// ExportedClient carries only the metadata block of a client summary.
type ExportedClient struct {
	Metadata export.ExportedMetadata `json:"metadata"`
}

func (r ExportedClient) ExportMetadata() export.ExportedMetadata { return r.Metadata }

// ExportedSoftware is an installed software package.
type ExportedSoftware struct {
	Metadata export.ExportedMetadata `json:"metadata"`

	Name         export.Opt[string]           `json:"name,omitzero"`
	Version      export.Opt[string]           `json:"version,omitzero"`
	Description  export.Opt[string]           `json:"description,omitzero"`
	Vendor       export.Opt[string]           `json:"vendor,omitzero"`
	InstalledBy  export.Opt[string]           `json:"installed_by,omitzero"`
	InstallState export.Opt[string]           `json:"install_state,omitzero" export:"enum=INSTALLED|PENDING|UNINSTALLED|UNKNOWN"`
	InstallDate  export.Opt[export.Timestamp] `json:"install_date,omitzero" export:"unit=s"`
}

func (r ExportedSoftware) ExportMetadata() export.ExportedMetadata { return r.Metadata }

// ExportedAnomaly is a finding raised by a parser or a check.
type ExportedAnomaly struct {
	Metadata export.ExportedMetadata `json:"metadata"`

	Type                export.Opt[string] `json:"type,omitzero" export:"enum=UNKNOWN_ANOMALY_TYPE|PARSER_ANOMALY|ANALYSIS_ANOMALY|MANUAL_ANOMALY"`
	Severity            export.Opt[string] `json:"severity,omitzero" export:"enum=UNKNOWN_SEVERITY|LOW|MEDIUM|HIGH|CRITICAL"`
	Confidence          export.Opt[string] `json:"confidence,omitzero" export:"enum=UNKNOWN_SEVERITY|LOW|MEDIUM|HIGH|CRITICAL"`
	Symptom             export.Opt[string] `json:"symptom,omitzero"`
	Explanation         export.Opt[string] `json:"explanation,omitzero"`
	GeneratedBy         export.Opt[string] `json:"generated_by,omitzero"`
	AnomalyReferenceIDs export.Opt[string] `json:"anomaly_reference_id,omitzero" export:"src=anomaly_reference_id,join"`
	Finding             export.Opt[string] `json:"finding,omitzero" export:"join"`
}

func (r ExportedAnomaly) ExportMetadata() export.ExportedMetadata { return r.Metadata }

// ExportedCheckResult is the outcome of a host check with its anomaly.
type ExportedCheckResult struct {
	Metadata export.ExportedMetadata `json:"metadata"`

	CheckID export.Opt[string] `json:"check_id,omitzero"`
	Anomaly ExportedAnomaly    `json:"anomaly,omitzero"`
}

func (r ExportedCheckResult) ExportMetadata() export.ExportedMetadata { return r.Metadata }
