// Package tools is the closed catalog of operations the assistant may invoke,
// with schema validation and the business guardrails in front of the booking
// engine.
package tools

// Kind tags one catalog entry.
type Kind int

const (
	KindUnknown Kind = iota
	KindGetAvailableRooms
	KindCreateReservation
	KindSearchKnowledge
	KindGetUserPreference
)

var kindNames = [...]string{
	KindUnknown:           "",
	KindGetAvailableRooms: "getAvailableRooms",
	KindCreateReservation: "createReservation",
	KindSearchKnowledge:   "searchKnowledge",
	KindGetUserPreference: "getUserPreference",
}

// Kinds lists the catalog in declaration order.
func Kinds() []Kind {
	return []Kind{KindGetAvailableRooms, KindCreateReservation, KindSearchKnowledge, KindGetUserPreference}
}

// String returns the wire name.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return ""
	}
	return kindNames[k]
}

// ParseKind maps a wire name to its Kind. Names are case-sensitive.
func ParseKind(name string) (Kind, bool) {
	for _, k := range Kinds() {
		if kindNames[k] == name {
			return k, true
		}
	}
	return KindUnknown, false
}
