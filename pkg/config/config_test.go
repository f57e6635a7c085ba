package config

import (
	"testing"
	"time"
)

// validTestConfig returns a defaulted configuration with one file sink and
// one job, valid as is.
func validTestConfig() *Config {
	cfg := &Config{
		Sinks: []SinkConfig{
			{Name: "archive", Type: SinkJSONL, Path: "out/export.jsonl"},
		},
		Jobs: []JobConfig{
			{Name: "hourly", Schedule: "@hourly", Window: time.Hour, Sinks: []string{"archive"}},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

func TestExportConfig_Options_Defaults(t *testing.T) {
	cfg := NewDefault()
	opts := cfg.Export.Options()

	if !opts.ExportFilesHashes {
		t.Error("expected hashes to be exported by default")
	}
	if opts.ExportFilesContents {
		t.Error("expected contents to be off by default")
	}
	if opts.FollowURNs {
		t.Error("expected follow_urns to be off by default")
	}
	if opts.FollowTimeout != 10*time.Second {
		t.Errorf("expected follow timeout 10s, got %v", opts.FollowTimeout)
	}
	if opts.MaxFollowDepth != 4 {
		t.Errorf("expected max follow depth 4, got %d", opts.MaxFollowDepth)
	}
}

func TestExportConfig_Options_ExplicitFalseHashes(t *testing.T) {
	off := false
	cfg := ExportConfig{
		FilesContents: true,
		FilesHashes:   &off,
		FollowURNs:    true,
		Annotations:   []string{"a", "b"},
	}
	opts := cfg.Options()

	if opts.ExportFilesHashes {
		t.Error("expected explicit false to disable hashes")
	}
	if !opts.ExportFilesContents || !opts.FollowURNs {
		t.Errorf("expected contents and follow_urns on, got %+v", opts)
	}
	if len(opts.Annotations) != 2 || opts.Annotations[0] != "a" {
		t.Errorf("unexpected annotations %v", opts.Annotations)
	}

	// The options own their annotations.
	opts.Annotations[0] = "changed"
	if cfg.Annotations[0] != "a" {
		t.Error("options share the annotation slice with the config")
	}
}

func TestConfig_Sink(t *testing.T) {
	cfg := validTestConfig()

	s, ok := cfg.Sink("archive")
	if !ok {
		t.Fatal("expected sink archive")
	}
	if s.Type != SinkJSONL {
		t.Errorf("expected type %q, got %q", SinkJSONL, s.Type)
	}

	if _, ok := cfg.Sink("missing"); ok {
		t.Error("expected missing sink lookup to fail")
	}
}
