// Package collector turns the live state of the local host into raw
// records.
//
// The collector reads the host through gopsutil (host info, users, process
// table, sockets, interfaces) behind the System interface and produces a
// ClientSnapshot plus one raw record per process, connection or interface.
// The records are ordinary export.RawRecord values: they can be stored,
// spooled as JSONL or exported directly.
//
// Client URNs are derived from the host ID, so repeated collections on the
// same machine share a client.
package collector
