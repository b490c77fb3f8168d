// FilePath: internal/models/models.address.go
package models

// Id-space thresholds inherited from the wire format. Ids below
// TagStartingID are plain device ids, ids in [TagStartingID,
// DeviceSelectorStartingID) are tags and everything above is a
// device-selector widget id. The constants must be preserved bit-for-bit
// for client compatibility; derive the kind only through AddressKindOf.
const (
	TagStartingID            = 100_000
	DeviceSelectorStartingID = 200_000
)

// AddressKind classifies an address token once at parse time.
type AddressKind int

const (
	AddressDevice AddressKind = iota
	AddressTag
	AddressSelector
)

func (k AddressKind) String() string {
	switch k {
	case AddressTag:
		return "tag"
	case AddressSelector:
		return "selector"
	}
	return "device"
}

// AddressKindOf computes the address kind of a raw id.
func AddressKindOf(id int) AddressKind {
	switch {
	case id >= DeviceSelectorStartingID:
		return AddressSelector
	case id >= TagStartingID:
		return AddressTag
	default:
		return AddressDevice
	}
}
