package shapes

import "mercator-hq/exporter/pkg/export"

// NetworkEndpoint is one side of a connection. It is a nested group and has
// no metadata of its own.
type NetworkEndpoint struct {
	IP   export.Opt[string] `json:"ip,omitzero"`
	Port export.Opt[uint64] `json:"port,omitzero"`
}

// ExportedNetworkConnection is a socket from a connection listing.
type ExportedNetworkConnection struct {
	Metadata export.ExportedMetadata `json:"metadata"`

	Family        export.Opt[string]           `json:"family,omitzero" export:"enum=INET|INET6|INET6_WIN|UNIX"`
	Type          export.Opt[string]           `json:"type,omitzero" export:"enum=UNKNOWN_SOCKET|SOCK_STREAM|SOCK_DGRAM"`
	LocalAddress  NetworkEndpoint              `json:"local_address,omitzero"`
	RemoteAddress NetworkEndpoint              `json:"remote_address,omitzero"`
	State         export.Opt[string]           `json:"state,omitzero" export:"enum=UNKNOWN|CLOSED|LISTEN|SYN_SENT|SYN_RECV|ESTABLISHED|FIN_WAIT1|FIN_WAIT2|CLOSE_WAIT|CLOSING|LAST_ACK|TIME_WAIT|DELETE_TCB|NONE|CLOSE"`
	PID           export.Opt[uint64]           `json:"pid,omitzero"`
	CTime         export.Opt[export.Timestamp] `json:"ctime,omitzero" export:"unit=us"`
}

func (r ExportedNetworkConnection) ExportMetadata() export.ExportedMetadata { return r.Metadata }

// ExportedNetworkInterface is a network interface with its addresses.
type ExportedNetworkInterface struct {
	Metadata export.ExportedMetadata `json:"metadata"`

	MACAddress   export.Opt[string] `json:"mac_address,omitzero"`
	IfName       export.Opt[string] `json:"ifname,omitzero"`
	IP4Addresses export.Opt[string] `json:"ip4_addresses,omitzero" export:"join"`
	IP6Addresses export.Opt[string] `json:"ip6_addresses,omitzero" export:"join"`
}

func (r ExportedNetworkInterface) ExportMetadata() export.ExportedMetadata { return r.Metadata }

// ExportedDNSClientConfiguration is the resolver configuration of a client.
type ExportedDNSClientConfiguration struct {
	Metadata export.ExportedMetadata `json:"metadata"`

	DNSServers  export.Opt[string] `json:"dns_servers,omitzero" export:"join"`
	DNSSuffixes export.Opt[string] `json:"dns_suffixes,omitzero" export:"join"`
}

func (r ExportedDNSClientConfiguration) ExportMetadata() export.ExportedMetadata {
	return r.Metadata
}
