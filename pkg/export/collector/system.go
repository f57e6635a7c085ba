package collector

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/host"
	psnet "github.com/shirou/gopsutil/net"
	"github.com/shirou/gopsutil/process"
)

// HostInfo describes the collecting host.
type HostInfo struct {
	Hostname        string
	OS              string
	Platform        string
	PlatformVersion string
	KernelVersion   string
	KernelArch      string
	HostID          string
	BootTime        uint64
}

// ProcessInfo is one entry of a process listing. Fields the platform does
// not report are left zero and named in Missing.
type ProcessInfo struct {
	PID           int32
	PPID          int32
	Name          string
	Exe           string
	Cmdline       []string
	CreateTimeMS  int64
	UIDs          []int32
	GIDs          []int32
	Username      string
	Terminal      string
	Nice          int32
	Cwd           string
	NumThreads    int32
	UserCPUTime   float64
	SystemCPUTime float64
	RSS           uint64
	VMS           uint64
	MemoryPercent float32

	// Missing names the fields that could not be read.
	Missing map[string]bool
}

// Endpoint is one side of a socket.
type Endpoint struct {
	IP   string
	Port uint32
}

// ConnectionInfo is one socket of a connection listing.
type ConnectionInfo struct {
	Family uint32
	Type   uint32
	Local  Endpoint
	Remote Endpoint
	Status string
	PID    int32
}

// InterfaceInfo is a network interface and its addresses in CIDR notation.
type InterfaceInfo struct {
	Name         string
	HardwareAddr string
	Addrs        []string
}

// System reads the live state of the host.
type System interface {
	Host(ctx context.Context) (*HostInfo, error)
	Users(ctx context.Context) ([]string, error)
	Processes(ctx context.Context) ([]ProcessInfo, error)
	Connections(ctx context.Context) ([]ConnectionInfo, error)
	Interfaces(ctx context.Context) ([]InterfaceInfo, error)
}

// LocalSystem reads the local host through gopsutil.
type LocalSystem struct{}

// Host implements System.
func (LocalSystem) Host(ctx context.Context) (*HostInfo, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return &HostInfo{
		Hostname:        info.Hostname,
		OS:              info.OS,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		KernelVersion:   info.KernelVersion,
		KernelArch:      info.KernelArch,
		HostID:          info.HostID,
		BootTime:        info.BootTime,
	}, nil
}

// Users implements System. Names are unique and in login order.
func (LocalSystem) Users(ctx context.Context) ([]string, error) {
	users, err := host.UsersWithContext(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var names []string
	for _, u := range users {
		if u.User == "" || seen[u.User] {
			continue
		}
		seen[u.User] = true
		names = append(names, u.User)
	}
	return names, nil
}

// Processes implements System. Processes that exit during the listing
// are skipped; fields that cannot be read are marked missing.
func (LocalSystem) Processes(ctx context.Context) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		running, err := p.IsRunningWithContext(ctx)
		if err != nil || !running {
			continue
		}
		out = append(out, readProcess(ctx, p))
	}
	return out, nil
}

func readProcess(ctx context.Context, p *process.Process) ProcessInfo {
	info := ProcessInfo{PID: p.Pid, Missing: make(map[string]bool)}
	miss := func(field string, err error) bool {
		if err != nil {
			info.Missing[field] = true
			return true
		}
		return false
	}

	var err error
	info.PPID, err = p.PpidWithContext(ctx)
	miss("ppid", err)
	info.Name, err = p.NameWithContext(ctx)
	miss("name", err)
	info.Exe, err = p.ExeWithContext(ctx)
	miss("exe", err)
	info.Cmdline, err = p.CmdlineSliceWithContext(ctx)
	miss("cmdline", err)
	info.CreateTimeMS, err = p.CreateTimeWithContext(ctx)
	miss("ctime", err)
	info.UIDs, err = p.UidsWithContext(ctx)
	miss("uids", err)
	info.GIDs, err = p.GidsWithContext(ctx)
	miss("gids", err)
	info.Username, err = p.UsernameWithContext(ctx)
	miss("username", err)
	info.Terminal, err = p.TerminalWithContext(ctx)
	miss("terminal", err)
	info.Nice, err = p.NiceWithContext(ctx)
	miss("nice", err)
	info.Cwd, err = p.CwdWithContext(ctx)
	miss("cwd", err)
	info.NumThreads, err = p.NumThreadsWithContext(ctx)
	miss("num_threads", err)

	if times, err := p.TimesWithContext(ctx); !miss("cpu_times", err) {
		info.UserCPUTime = times.User
		info.SystemCPUTime = times.System
	}
	if mem, err := p.MemoryInfoWithContext(ctx); !miss("memory", err) {
		info.RSS = mem.RSS
		info.VMS = mem.VMS
	}
	info.MemoryPercent, err = p.MemoryPercentWithContext(ctx)
	miss("memory_percent", err)

	return info
}

// Connections implements System. Only internet sockets are listed.
func (LocalSystem) Connections(ctx context.Context) ([]ConnectionInfo, error) {
	conns, err := psnet.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return nil, err
	}
	out := make([]ConnectionInfo, 0, len(conns))
	for _, c := range conns {
		out = append(out, ConnectionInfo{
			Family: c.Family,
			Type:   c.Type,
			Local:  Endpoint{IP: c.Laddr.IP, Port: c.Laddr.Port},
			Remote: Endpoint{IP: c.Raddr.IP, Port: c.Raddr.Port},
			Status: strings.ToUpper(c.Status),
			PID:    c.Pid,
		})
	}
	return out, nil
}

// Interfaces implements System.
func (LocalSystem) Interfaces(ctx context.Context) ([]InterfaceInfo, error) {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]InterfaceInfo, 0, len(ifaces))
	for _, iface := range ifaces {
		info := InterfaceInfo{Name: iface.Name, HardwareAddr: iface.HardwareAddr}
		for _, a := range iface.Addrs {
			info.Addrs = append(info.Addrs, a.Addr)
		}
		out = append(out, info)
	}
	return out, nil
}
