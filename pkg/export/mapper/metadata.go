package mapper

import (
	"mercator-hq/exporter/pkg/export"
)

const metadataShape = "ExportedMetadata"

// metadata builds the metadata block shared by every record produced from
// raw. Only the timestamp depends on the clock.
func (m *Mapper) metadata(raw *export.RawRecord, opts export.Options) (export.ExportedMetadata, error) {
	c := raw.Client
	all, system, user := export.PartitionLabels(c.Labels)

	var err error
	join := func(field string, items []string) string {
		if err != nil {
			return ""
		}
		s, jerr := export.JoinList(items)
		if jerr != nil {
			err = export.NewFieldCoercionError(metadataShape, field, items, jerr)
		}
		return s
	}

	md := export.ExportedMetadata{
		ClientURN:         c.URN,
		Hostname:          c.Hostname,
		OS:                c.OS,
		ClientAge:         c.FirstSeen,
		Uname:             c.Uname,
		OSRelease:         c.OSRelease,
		OSVersion:         c.OSVersion,
		Usernames:         join("usernames", c.Usernames),
		MACAddress:        join("mac_address", c.MACAddresses),
		Timestamp:         export.TimestampOf(m.now()),
		OriginalTimestamp: raw.Timestamp,
		Labels:            join("labels", all),
		SystemLabels:      join("system_labels", system),
		UserLabels:        join("user_labels", user),
		SourceURN:         raw.SourceURN,
		Annotations:       join("annotations", opts.Annotations),
		KernelVersion:     c.KernelVersion,
	}
	if err != nil {
		return export.ExportedMetadata{}, err
	}

	if hw := c.Hardware; hw != nil {
		md.HardwareInfo = export.ExportedHardwareInfo{
			SerialNumber:       hw.SerialNumber,
			SystemManufacturer: hw.SystemManufacturer,
			SystemProductName:  hw.SystemProductName,
			SystemUUID:         hw.SystemUUID,
			SystemSKUNumber:    hw.SystemSKUNumber,
			SystemFamily:       hw.SystemFamily,
			BIOSVendor:         hw.BIOSVendor,
			BIOSVersion:        hw.BIOSVersion,
			BIOSReleaseDate:    hw.BIOSReleaseDate,
			BIOSROMSize:        hw.BIOSROMSize,
			BIOSRevision:       hw.BIOSRevision,
		}
	}

	return md, nil
}
