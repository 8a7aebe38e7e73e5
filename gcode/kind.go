package gcode

// Kind groups codes that share a validation rule.
type Kind int

const (
	KindUnknown Kind = iota
	KindLinear
	KindArc
	KindSetPosition
	KindHoming
	KindLeveling
	KindPositioning
	KindTemperature
	KindFan
	KindExtrusion
	KindMotors
	KindStorage
	KindReporting
	KindEmergency
)

var kindNames = [...]string{
	KindUnknown:     "unknown",
	KindLinear:      "linear motion",
	KindArc:         "arc motion",
	KindSetPosition: "set position",
	KindHoming:      "homing",
	KindLeveling:    "leveling",
	KindPositioning: "positioning mode",
	KindTemperature: "temperature",
	KindFan:         "fan",
	KindExtrusion:   "extrusion mode",
	KindMotors:      "motors",
	KindStorage:     "storage control",
	KindReporting:   "reporting",
	KindEmergency:   "emergency stop",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

var kinds = map[Code]Kind{
	G(0): KindLinear,
	G(1): KindLinear,
	G(2): KindArc,
	G(3): KindArc,

	G(92): KindSetPosition,
	G(28): KindHoming,
	G(29): KindLeveling,

	G(20): KindPositioning,
	G(21): KindPositioning,
	G(90): KindPositioning,
	G(91): KindPositioning,

	M(104): KindTemperature,
	M(109): KindTemperature,
	M(140): KindTemperature,
	M(190): KindTemperature,

	M(106): KindFan,
	M(107): KindFan,

	M(82): KindExtrusion,
	M(83): KindExtrusion,

	M(17): KindMotors,
	M(18): KindMotors,
	M(84): KindMotors,

	M(20): KindStorage,
	M(21): KindStorage,
	M(22): KindStorage,
	M(23): KindStorage,
	M(24): KindStorage,
	M(25): KindStorage,
	M(26): KindStorage,
	M(27): KindStorage,
	M(28): KindStorage,
	M(29): KindStorage,

	M(105): KindReporting,
	M(114): KindReporting,
	M(115): KindReporting,

	M(112): KindEmergency,
}

// Codes returns every supported code.
func Codes() []Code {
	res := make([]Code, 0, len(kinds))
	for c := range kinds {
		res = append(res, c)
	}
	return res
}
