package capture

import "fmt"

// Stage is the position of the coordinator in the camera life cycle.
// Stages only move forward.
type Stage int32

const (
	StageUninitialized Stage = iota
	StageDeviceOpening
	StageSessionConfiguring
	StageActive // repeating request running
	StageClosed
)

func (s Stage) String() string {
	switch s {
	case StageUninitialized:
		return "Uninitialized"
	case StageDeviceOpening:
		return "DeviceOpening"
	case StageSessionConfiguring:
		return "SessionConfiguring"
	case StageActive:
		return "Active"
	case StageClosed:
		return "Closed"
	default:
		return fmt.Sprintf("Stage(%d)", int32(s))
	}
}

// MarshalText lets Stage render as its name in JSON.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
