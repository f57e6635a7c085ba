package shapes

import "mercator-hq/exporter/pkg/export"

// ExportedFile is the exported form of a file stat entry.
type ExportedFile struct {
	Metadata export.ExportedMetadata `json:"metadata"`

	URN           export.Opt[string]           `json:"urn,omitzero"`
	Basename      export.Opt[string]           `json:"basename,omitzero" export:"src=path,conv=basename"`
	PathType      export.Opt[string]           `json:"path_type,omitzero" export:"src=pathspec.pathtype,enum=OS|TSK|REGISTRY|TMPFILE|NTFS"`
	StMode        export.Opt[uint64]           `json:"st_mode,omitzero"`
	StIno         export.Opt[uint64]           `json:"st_ino,omitzero"`
	StDev         export.Opt[uint64]           `json:"st_dev,omitzero"`
	StNlink       export.Opt[uint64]           `json:"st_nlink,omitzero"`
	StUID         export.Opt[uint64]           `json:"st_uid,omitzero"`
	StGID         export.Opt[uint64]           `json:"st_gid,omitzero"`
	StSize        export.Opt[uint64]           `json:"st_size,omitzero"`
	StAtime       export.Opt[export.Timestamp] `json:"st_atime,omitzero" export:"unit=s"`
	StMtime       export.Opt[export.Timestamp] `json:"st_mtime,omitzero" export:"unit=s"`
	StCtime       export.Opt[export.Timestamp] `json:"st_ctime,omitzero" export:"unit=s"`
	StBtime       export.Opt[export.Timestamp] `json:"st_btime,omitzero" export:"unit=s"`
	StBlocks      export.Opt[uint64]           `json:"st_blocks,omitzero"`
	StBlksize     export.Opt[uint64]           `json:"st_blksize,omitzero"`
	StRdev        export.Opt[uint64]           `json:"st_rdev,omitzero"`
	Symlink       export.Opt[string]           `json:"symlink,omitzero"`
	Content       export.Opt[[]byte]           `json:"content,omitzero" export:"content"`
	HashMD5       export.Opt[string]           `json:"hash_md5,omitzero" export:"hash"`
	HashSHA1      export.Opt[string]           `json:"hash_sha1,omitzero" export:"hash"`
	HashSHA256    export.Opt[string]           `json:"hash_sha256,omitzero" export:"hash"`
	PecoffMD5     export.Opt[string]           `json:"pecoff_hash_md5,omitzero" export:"src=pecoff.md5,hash"`
	PecoffSHA1    export.Opt[string]           `json:"pecoff_hash_sha1,omitzero" export:"src=pecoff.sha1,hash"`
	CertHasher    export.Opt[string]           `json:"cert_hasher_name,omitzero" export:"src=authenticode.hasher_name"`
	CertProgram   export.Opt[string]           `json:"cert_program_name,omitzero" export:"src=authenticode.program_name"`
	CertURL       export.Opt[string]           `json:"cert_program_url,omitzero" export:"src=authenticode.program_url"`
	CertIssuer    export.Opt[string]           `json:"cert_chain_head_issuer,omitzero" export:"src=authenticode.chain_head_issuer"`
	CertCounter   export.Opt[string]           `json:"cert_countersignature_chain_head_issuer,omitzero" export:"src=authenticode.countersignature_chain_head_issuer"`
	CertPEM       export.Opt[string]           `json:"cert_certificates,omitzero" export:"src=authenticode.certificates"`
	ContentSHA256 export.Opt[string]           `json:"content_sha256,omitzero" export:"deprecated"`
}

func (r ExportedFile) ExportMetadata() export.ExportedMetadata { return r.Metadata }

// ExportedRegistryKey is the exported form of a registry value stat entry.
type ExportedRegistryKey struct {
	Metadata export.ExportedMetadata `json:"metadata"`

	URN          export.Opt[string]           `json:"urn,omitzero"`
	KeyPath      export.Opt[string]           `json:"key_path,omitzero" export:"src=path"`
	LastModified export.Opt[export.Timestamp] `json:"last_modified,omitzero" export:"src=st_mtime,unit=s"`
	Type         export.Opt[string]           `json:"type,omitzero" export:"src=registry_type,enum=REG_NONE|REG_SZ|REG_EXPAND_SZ|REG_BINARY|REG_DWORD|REG_DWORD_BIG_ENDIAN|REG_LINK|REG_MULTI_SZ|REG_QWORD"`
	Data         export.Opt[[]byte]           `json:"data,omitzero" export:"src=registry_data"`
}

func (r ExportedRegistryKey) ExportMetadata() export.ExportedMetadata { return r.Metadata }

// ExportedOpenFile is a file held open by a process.
type ExportedOpenFile struct {
	Metadata export.ExportedMetadata `json:"metadata"`

	PID  export.Opt[uint64] `json:"pid,omitzero"`
	Path export.Opt[string] `json:"path,omitzero"`
}

func (r ExportedOpenFile) ExportMetadata() export.ExportedMetadata { return r.Metadata }

// ExportedFileStoreHash is a hash index entry of the file store.
type ExportedFileStoreHash struct {
	Metadata export.ExportedMetadata `json:"metadata"`

	FingerprintType export.Opt[string] `json:"fingerprint_type,omitzero" export:"enum=generic|pecoff"`
	HashType        export.Opt[string] `json:"hash_type,omitzero" export:"enum=md5|sha1|sha256"`
	HashValue       export.Opt[string] `json:"hash_value,omitzero" export:"hash"`
	TargetURN       export.Opt[string] `json:"target_urn,omitzero"`
}

func (r ExportedFileStoreHash) ExportMetadata() export.ExportedMetadata { return r.Metadata }

// ExportedArtifactFilesDownloaderResult pairs an artifact result with the
// file that was downloaded for it.
type ExportedArtifactFilesDownloaderResult struct {
	Metadata export.ExportedMetadata `json:"metadata"`

	OriginalRegistryKey ExportedRegistryKey `json:"original_registry_key,omitzero"`
	OriginalFile        ExportedFile        `json:"original_file,omitzero"`
	FoundPath           export.Opt[string]  `json:"found_path,omitzero"`
	DownloadedFile      ExportedFile        `json:"downloaded_file,omitzero"`
}

func (r ExportedArtifactFilesDownloaderResult) ExportMetadata() export.ExportedMetadata {
	return r.Metadata
}

// ExportedMatch is a buffer match inside a file. The matched bytes are a
// bounded excerpt the search asked for, so they are exported regardless of
// the contents option.
type ExportedMatch struct {
	Metadata export.ExportedMetadata `json:"metadata"`

	Offset export.Opt[uint64] `json:"offset,omitzero"`
	Length export.Opt[uint64] `json:"length,omitzero"`
	Data   export.Opt[[]byte] `json:"data,omitzero"`
	URN    export.Opt[string] `json:"urn,omitzero" export:"src=pathspec.path"`
}

func (r ExportedMatch) ExportMetadata() export.ExportedMetadata { return r.Metadata }

// ExportedBytes is an opaque data blob. The blob itself is file content
// and follows the contents option; its length is always exported.
type ExportedBytes struct {
	Metadata export.ExportedMetadata `json:"metadata"`

	Data   export.Opt[[]byte] `json:"data,omitzero" export:"content"`
	Length export.Opt[uint64] `json:"length,omitzero"`
}

func (r ExportedBytes) ExportMetadata() export.ExportedMetadata { return r.Metadata }

// ExportedString is a single string value.
type ExportedString struct {
	Metadata export.ExportedMetadata `json:"metadata"`

	Data export.Opt[string] `json:"data,omitzero"`
}

func (r ExportedString) ExportMetadata() export.ExportedMetadata { return r.Metadata }
