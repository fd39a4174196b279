package slots

// SlotStatus is the per-slot view returned to callers.
type SlotStatus struct {
	Start     TimeOfDay
	End       TimeOfDay
	Open      bool
	Booked    bool
	Available bool
}

// SlotInfo is a simplified representation for the API.
type SlotInfo struct {
	Start     string `json:"start"` // "06:00"
	End       string `json:"end"`   // "07:00"
	Booked    bool   `json:"booked"`
	Available bool   `json:"available"`
}

// Project combines the catalog, the open flags from ResolveOpen and the set
// of slots holding a non-cancelled reservation. The result has exactly one
// entry per catalog slot, in catalog order.
func Project(catalog []TimeSlot, open []bool, booked map[TimeSlot]bool) []SlotStatus {
	out := make([]SlotStatus, len(catalog))
	for i, s := range catalog {
		isOpen := i < len(open) && open[i]
		isBooked := booked[s]
		out[i] = SlotStatus{
			Start:     s.Start,
			End:       s.End,
			Open:      isOpen,
			Booked:    isBooked,
			Available: isOpen && !isBooked,
		}
	}
	return out
}

// ToSlotInfo converts statuses for the API.
func ToSlotInfo(statuses []SlotStatus) []SlotInfo {
	result := make([]SlotInfo, len(statuses))
	for i, s := range statuses {
		result[i] = SlotInfo{
			Start:     s.Start.String(),
			End:       s.End.String(),
			Booked:    s.Booked,
			Available: s.Available,
		}
	}
	return result
}
