package offset

import "time"

// StartpointType tags which variant a Startpoint carries.
type StartpointType int

const (
	StartpointTypeSpecificOffset StartpointType = iota
	StartpointTypeTimestamp
	StartpointTypeOldest
	StartpointTypeUpcoming
	StartpointTypeCustom
)

func (t StartpointType) String() string {
	switch t {
	case StartpointTypeSpecificOffset:
		return "SpecificOffset"
	case StartpointTypeTimestamp:
		return "Timestamp"
	case StartpointTypeOldest:
		return "Oldest"
	case StartpointTypeUpcoming:
		return "Upcoming"
	case StartpointTypeCustom:
		return "Custom"
	default:
		return "Unknown"
	}
}

// Startpoint is an operator-issued override of the starting position for
// an SSP. Resolution to a concrete offset is delegated to the owning
// SystemAdmin (offsystem.Admin) via ResolveStartpointToOffset.
type Startpoint interface {
	Type() StartpointType
}

var (
	_ Startpoint = SpecificOffsetStartpoint{}
	_ Startpoint = TimestampStartpoint{}
	_ Startpoint = OldestStartpoint{}
	_ Startpoint = UpcomingStartpoint{}
	_ Startpoint = CustomStartpoint{}
)

// SpecificOffsetStartpoint pins a partition to a broker-defined offset.
type SpecificOffsetStartpoint struct {
	Offset string
}

func (s SpecificOffsetStartpoint) Type() StartpointType { return StartpointTypeSpecificOffset }

// TimestampStartpoint asks the SystemAdmin to resolve the earliest offset
// at or after a wall-clock time.
type TimestampStartpoint struct {
	Timestamp time.Time
}

func (s TimestampStartpoint) Type() StartpointType { return StartpointTypeTimestamp }

// OldestStartpoint pins a partition to the oldest available offset.
type OldestStartpoint struct{}

func (s OldestStartpoint) Type() StartpointType { return StartpointTypeOldest }

// UpcomingStartpoint pins a partition to the next offset produced after
// resolution.
type UpcomingStartpoint struct{}

func (s UpcomingStartpoint) Type() StartpointType { return StartpointTypeUpcoming }

// CustomStartpoint carries an opaque, system-specific override that only
// the owning SystemAdmin knows how to interpret.
type CustomStartpoint struct {
	Payload map[string]string
}

func (s CustomStartpoint) Type() StartpointType { return StartpointTypeCustom }
