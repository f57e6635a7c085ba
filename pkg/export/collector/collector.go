package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mercator-hq/exporter/pkg/config"
	"mercator-hq/exporter/pkg/export"

	"github.com/google/uuid"
)

// LabelOwner owns the labels the collector attaches from configuration.
const LabelOwner = "mercator-export"

// clientNamespace derives stable client URNs from host IDs.
var clientNamespace = uuid.MustParse("6f1c2b0e-4a0b-4f7e-9a57-3d1f0c2e8b41")

// Result is the outcome of one collection.
type Result struct {
	Client  export.ClientSnapshot
	Records []*export.RawRecord

	// Errors lists kinds that could not be collected. The other kinds are
	// still returned.
	Errors []error
}

// Collector snapshots the local host into raw records.
type Collector struct {
	config config.CollectorConfig
	system System
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Collector.
type Option func(*Collector)

// WithSystem replaces the gopsutil backed system reader.
func WithSystem(s System) Option {
	return func(c *Collector) {
		c.system = s
	}
}

// WithClock sets the clock used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		c.now = now
	}
}

// New creates a collector.
func New(cfg config.CollectorConfig, opts ...Option) *Collector {
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = config.DefaultCollectorKinds
	}
	c := &Collector{
		config: cfg,
		system: LocalSystem{},
		logger: slog.Default().With("component", "export.collector"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect reads the client snapshot and the configured kinds. Failing to
// read the host itself is an error; a kind that fails is listed in
// Result.Errors.
func (c *Collector) Collect(ctx context.Context) (*Result, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	start := c.now()
	client, err := c.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect host info: %w", err)
	}

	res := &Result{Client: client}
	b := &builder{client: client, ts: export.TimestampOf(start)}

	for _, kind := range c.config.Kinds {
		var (
			recs []*export.RawRecord
			err  error
		)
		switch export.Kind(kind) {
		case export.KindProcess:
			var procs []ProcessInfo
			if procs, err = c.system.Processes(ctx); err == nil {
				recs = b.processes(procs)
			}
		case export.KindNetworkConnection:
			var conns []ConnectionInfo
			if conns, err = c.system.Connections(ctx); err == nil {
				recs = b.connections(conns)
			}
		case export.KindNetworkInterface:
			var ifaces []InterfaceInfo
			if ifaces, err = c.system.Interfaces(ctx); err == nil {
				recs = b.interfaces(ifaces)
			}
		default:
			err = errors.New("kind is not collectable")
		}

		if err != nil {
			c.logger.Warn("collection failed", "kind", kind, "error", err)
			res.Errors = append(res.Errors, fmt.Errorf("collect %s: %w", kind, err))
			continue
		}
		c.logger.Debug("collected records", "kind", kind, "count", len(recs))
		res.Records = append(res.Records, recs...)
	}

	c.logger.Info("collection finished",
		"client_urn", client.URN,
		"records", len(res.Records),
		"failed_kinds", len(res.Errors),
		"duration", c.now().Sub(start),
	)
	return res, nil
}

// Snapshot describes the local host as a client.
func (c *Collector) Snapshot(ctx context.Context) (export.ClientSnapshot, error) {
	info, err := c.system.Host(ctx)
	if err != nil {
		return export.ClientSnapshot{}, err
	}

	snap := export.ClientSnapshot{
		URN:           ClientURN(info),
		Hostname:      info.Hostname,
		OS:            osName(info.OS),
		FirstSeen:     export.TimestampOf(time.Unix(int64(info.BootTime), 0)),
		Uname:         strings.Join(nonEmpty(info.OS, info.Platform, info.PlatformVersion, info.KernelVersion), "-"),
		OSRelease:     info.Platform,
		OSVersion:     info.PlatformVersion,
		KernelVersion: info.KernelVersion,
	}
	if info.HostID != "" {
		snap.Hardware = &export.HardwareInfo{SystemUUID: info.HostID}
	}
	for _, l := range c.config.Labels {
		snap.Labels = append(snap.Labels, export.Label{Name: l, Owner: LabelOwner})
	}

	// Users and interfaces enrich the snapshot; a failure leaves them empty.
	if users, err := c.system.Users(ctx); err == nil {
		snap.Usernames = users
	} else {
		c.logger.Debug("reading users failed", "error", err)
	}
	if ifaces, err := c.system.Interfaces(ctx); err == nil {
		for _, iface := range ifaces {
			if iface.HardwareAddr != "" {
				snap.MACAddresses = append(snap.MACAddresses, iface.HardwareAddr)
			}
		}
	} else {
		c.logger.Debug("reading interfaces failed", "error", err)
	}

	return snap, nil
}

// ClientURN derives a stable "C.<16 hex>" client URN from the host ID,
// falling back to the hostname.
func ClientURN(info *HostInfo) string {
	key := info.HostID
	if key == "" {
		key = info.Hostname
	}
	id := uuid.NewSHA1(clientNamespace, []byte(key))
	return "C." + strings.ReplaceAll(id.String(), "-", "")[:16]
}

func osName(goos string) string {
	switch strings.ToLower(goos) {
	case "linux":
		return "Linux"
	case "darwin":
		return "Darwin"
	case "windows":
		return "Windows"
	}
	return goos
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
