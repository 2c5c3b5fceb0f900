package link

import (
	"maps"
	"sort"
	"strconv"
)

// MAV_AUTOPILOT values
const (
	autopilotArduPilot = 3
	autopilotInvalid   = 8
	autopilotPX4       = 12
)

// MAV_TYPE values
const (
	mavTypeFixedWing  = 1
	mavTypeQuadrotor  = 2
	mavTypeCoaxial    = 3
	mavTypeHelicopter = 4
	mavTypeGCS        = 6
	mavTypeRover      = 10
	mavTypeBoat       = 11
	mavTypeSubmarine  = 12
	mavTypeHexarotor  = 13
	mavTypeOctorotor  = 14
	mavTypeTricopter  = 15
	mavTypeVTOLFirst  = 19
	mavTypeVTOLLast   = 22
	mavTypeDodeca     = 29
	mavTypeDeca       = 35
)

var roverModes = map[string]uint32{
	"MANUAL":       0,
	"ACRO":         1,
	"LEARNING":     2,
	"STEERING":     3,
	"HOLD":         4,
	"LOITER":       5,
	"FOLLOW":       6,
	"SIMPLE":       7,
	"DOCK":         8,
	"CIRCLE":       9,
	"AUTO":         10,
	"RTL":          11,
	"SMART_RTL":    12,
	"GUIDED":       15,
	"INITIALISING": 16,
}

var copterModes = map[string]uint32{
	"STABILIZE":    0,
	"ACRO":         1,
	"ALT_HOLD":     2,
	"AUTO":         3,
	"GUIDED":       4,
	"LOITER":       5,
	"RTL":          6,
	"CIRCLE":       7,
	"POSITION":     8,
	"LAND":         9,
	"OF_LOITER":    10,
	"DRIFT":        11,
	"SPORT":        13,
	"FLIP":         14,
	"AUTOTUNE":     15,
	"POSHOLD":      16,
	"BRAKE":        17,
	"THROW":        18,
	"AVOID_ADSB":   19,
	"GUIDED_NOGPS": 20,
	"SMART_RTL":    21,
	"FLOWHOLD":     22,
	"FOLLOW":       23,
	"ZIGZAG":       24,
	"SYSTEMID":     25,
	"AUTOROTATE":   26,
	"AUTO_RTL":     27,
}

var planeModes = map[string]uint32{
	"MANUAL":       0,
	"CIRCLE":       1,
	"STABILIZE":    2,
	"TRAINING":     3,
	"ACRO":         4,
	"FBWA":         5,
	"FBWB":         6,
	"CRUISE":       7,
	"AUTOTUNE":     8,
	"AUTO":         10,
	"RTL":          11,
	"LOITER":       12,
	"TAKEOFF":      13,
	"AVOID_ADSB":   14,
	"GUIDED":       15,
	"INITIALISING": 16,
	"QSTABILIZE":   17,
	"QHOVER":       18,
	"QLOITER":      19,
	"QLAND":        20,
	"QRTL":         21,
	"QAUTOTUNE":    22,
	"QACRO":        23,
	"THERMAL":      24,
}

var subModes = map[string]uint32{
	"STABILIZE": 0,
	"ACRO":      1,
	"ALT_HOLD":  2,
	"AUTO":      3,
	"GUIDED":    4,
	"CIRCLE":    7,
	"SURFACE":   9,
	"POSHOLD":   16,
	"MANUAL":    19,
}

var px4MainModes = map[uint32]string{
	1: "MANUAL",
	2: "ALTCTL",
	3: "POSCTL",
	4: "AUTO",
	5: "ACRO",
	6: "OFFBOARD",
	7: "STABILIZED",
	8: "RATTITUDE",
}

var px4AutoSubModes = map[uint32]string{
	1: "READY",
	2: "TAKEOFF",
	3: "LOITER",
	4: "MISSION",
	5: "RTL",
	6: "LAND",
	8: "FOLLOWME",
	9: "PRECLAND",
}

// modeTable returns the ArduPilot mode table for a vehicle type, nil if the
// autopilot or vehicle type has no known table.
func modeTable(autopilot, vehicleType int) map[string]uint32 {
	if autopilot != autopilotArduPilot {
		return nil
	}
	switch {
	case vehicleType == mavTypeRover || vehicleType == mavTypeBoat:
		return roverModes
	case vehicleType == mavTypeFixedWing,
		vehicleType >= mavTypeVTOLFirst && vehicleType <= mavTypeVTOLLast:
		return planeModes
	case vehicleType == mavTypeSubmarine:
		return subModes
	case vehicleType == mavTypeQuadrotor, vehicleType == mavTypeCoaxial,
		vehicleType == mavTypeHelicopter, vehicleType == mavTypeHexarotor,
		vehicleType == mavTypeOctorotor, vehicleType == mavTypeTricopter,
		vehicleType == mavTypeDodeca, vehicleType == mavTypeDeca:
		return copterModes
	}
	return nil
}

// ModeTable returns a copy of the ArduPilot mode table for an autopilot and
// vehicle type pair, nil when there is none.
func ModeTable(autopilot, vehicleType int) map[string]uint32 {
	table := modeTable(autopilot, vehicleType)
	if table == nil {
		return nil
	}
	return maps.Clone(table)
}

// resolveMode maps a heartbeat to a mode name using the dialect conventions of
// its autopilot.
func resolveMode(hb *Heartbeat) (string, bool) {
	if hb == nil || hb.CustomMode == nil || hb.Autopilot == nil {
		return "", false
	}
	custom := *hb.CustomMode

	if *hb.Autopilot == autopilotPX4 {
		main := (custom >> 16) & 0xff
		sub := (custom >> 24) & 0xff
		name, ok := px4MainModes[main]
		if !ok {
			return "", false
		}
		if main == 4 {
			if subName, ok := px4AutoSubModes[sub]; ok {
				return subName, true
			}
		}
		return name, true
	}

	vehicleType := -1
	if hb.VehicleType != nil {
		vehicleType = *hb.VehicleType
	}
	for name, number := range modeTable(*hb.Autopilot, vehicleType) {
		if number == custom {
			return name, true
		}
	}
	return "", false
}

// sortedModeNames lists the keys of a mode table alphabetically.
func sortedModeNames(table map[string]uint32) []string {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// guessCustomMode looks a mode name up in every ArduPilot table, rover first,
// for vehicles that have not sent a heartbeat yet.
func guessCustomMode(name string) (uint32, bool) {
	for _, table := range []map[string]uint32{roverModes, copterModes, planeModes, subModes} {
		if number, ok := table[name]; ok {
			return number, true
		}
	}
	return 0, false
}

// parseCustomMode accepts a raw numeric custom mode when no table is known.
func parseCustomMode(mode string) (uint32, bool) {
	n, err := strconv.ParseUint(mode, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}
