package collector

import (
	"net"
	"slices"
	"strings"
	"syscall"

	"mercator-hq/exporter/pkg/export"

	"github.com/google/uuid"
)

type builder struct {
	client export.ClientSnapshot
	ts     export.Timestamp
}

func (b *builder) record(kind export.Kind, attrs map[string]any) *export.RawRecord {
	return &export.RawRecord{
		ID:         uuid.New().String(),
		Kind:       kind,
		SourceURN:  "aff4:/" + b.client.URN + "/collector/" + string(kind),
		Timestamp:  b.ts,
		Client:     b.client,
		Attributes: attrs,
	}
}

func (b *builder) processes(procs []ProcessInfo) []*export.RawRecord {
	out := make([]*export.RawRecord, 0, len(procs))
	for _, p := range procs {
		out = append(out, b.record(export.KindProcess, processAttributes(p)))
	}
	return out
}

func processAttributes(p ProcessInfo) map[string]any {
	attrs := map[string]any{"pid": int64(p.PID)}
	set := func(field string, v any) {
		if !p.Missing[field] {
			attrs[field] = v
		}
	}

	set("ppid", int64(p.PPID))
	set("name", p.Name)
	set("exe", p.Exe)
	// An argument holding the list delimiter cannot round trip through the
	// joined column, so such command lines are left out.
	if len(p.Cmdline) > 0 && !slices.ContainsFunc(p.Cmdline, hasDelimiter) {
		set("cmdline", p.Cmdline)
	}
	if p.CreateTimeMS > 0 {
		set("ctime", p.CreateTimeMS*1000)
	}
	if !p.Missing["uids"] {
		for i, name := range []string{"real_uid", "effective_uid", "saved_uid"} {
			if i < len(p.UIDs) {
				attrs[name] = int64(p.UIDs[i])
			}
		}
	}
	if !p.Missing["gids"] {
		for i, name := range []string{"real_gid", "effective_gid", "saved_gid"} {
			if i < len(p.GIDs) {
				attrs[name] = int64(p.GIDs[i])
			}
		}
	}
	if p.Username != "" {
		set("username", p.Username)
	}
	if p.Terminal != "" {
		set("terminal", p.Terminal)
	}
	set("nice", int64(p.Nice))
	if p.Cwd != "" {
		set("cwd", p.Cwd)
	}
	set("num_threads", int64(p.NumThreads))
	if !p.Missing["cpu_times"] {
		attrs["user_cpu_time"] = p.UserCPUTime
		attrs["system_cpu_time"] = p.SystemCPUTime
	}
	if !p.Missing["memory"] {
		attrs["rss_size"] = p.RSS
		attrs["vms_size"] = p.VMS
	}
	set("memory_percent", float64(p.MemoryPercent))
	return attrs
}

func (b *builder) connections(conns []ConnectionInfo) []*export.RawRecord {
	out := make([]*export.RawRecord, 0, len(conns))
	for _, c := range conns {
		out = append(out, b.record(export.KindNetworkConnection, connectionAttributes(c)))
	}
	return out
}

func connectionAttributes(c ConnectionInfo) map[string]any {
	attrs := map[string]any{
		"family":         socketFamily(c.Family),
		"type":           socketType(c.Type),
		"state":          socketState(c.Status),
		"local_address":  endpointAttributes(c.Local),
		"remote_address": endpointAttributes(c.Remote),
	}
	if c.PID > 0 {
		attrs["pid"] = int64(c.PID)
	}
	return attrs
}

func endpointAttributes(e Endpoint) map[string]any {
	m := map[string]any{}
	if e.IP != "" {
		m["ip"] = e.IP
	}
	if e.Port != 0 {
		m["port"] = uint64(e.Port)
	}
	return m
}

func socketFamily(f uint32) string {
	switch f {
	case syscall.AF_INET:
		return "INET"
	case syscall.AF_INET6:
		return "INET6"
	case syscall.AF_UNIX:
		return "UNIX"
	}
	return "INET"
}

func socketType(t uint32) string {
	switch t {
	case syscall.SOCK_STREAM:
		return "SOCK_STREAM"
	case syscall.SOCK_DGRAM:
		return "SOCK_DGRAM"
	}
	return "UNKNOWN_SOCKET"
}

var socketStates = map[string]bool{
	"CLOSED": true, "LISTEN": true, "SYN_SENT": true, "SYN_RECV": true,
	"ESTABLISHED": true, "FIN_WAIT1": true, "FIN_WAIT2": true, "CLOSE_WAIT": true,
	"CLOSING": true, "LAST_ACK": true, "TIME_WAIT": true, "DELETE_TCB": true,
	"NONE": true, "CLOSE": true,
}

func socketState(s string) string {
	s = strings.ToUpper(s)
	if socketStates[s] {
		return s
	}
	return "UNKNOWN"
}

func (b *builder) interfaces(ifaces []InterfaceInfo) []*export.RawRecord {
	out := make([]*export.RawRecord, 0, len(ifaces))
	for _, iface := range ifaces {
		attrs := map[string]any{"ifname": iface.Name}
		if iface.HardwareAddr != "" {
			attrs["mac_address"] = iface.HardwareAddr
		}
		var v4, v6 []string
		for _, a := range iface.Addrs {
			ip, _, err := net.ParseCIDR(a)
			if err != nil {
				ip = net.ParseIP(a)
			}
			switch {
			case ip == nil:
				continue
			case ip.To4() != nil:
				v4 = append(v4, ip.String())
			default:
				v6 = append(v6, ip.String())
			}
		}
		if len(v4) > 0 {
			attrs["ip4_addresses"] = v4
		}
		if len(v6) > 0 {
			attrs["ip6_addresses"] = v6
		}
		out = append(out, b.record(export.KindNetworkInterface, attrs))
	}
	return out
}

func hasDelimiter(s string) bool {
	return strings.Contains(s, export.ListDelimiter)
}
