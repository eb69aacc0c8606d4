package chunk

import "time"

// EventTime is the Fluentd Forward Protocol EventTime extension value: a
// 32-bit seconds field plus a 32-bit nanoseconds field, both big-endian on
// the wire (ext type 0, fixext8).
type EventTime struct {
	Sec  uint32
	Nsec uint32
}

// Now returns the current time as an EventTime.
func Now() EventTime {
	return FromTime(time.Now())
}

// FromTime converts a time.Time to an EventTime, truncating to nanosecond
// resolution in UTC.
func FromTime(t time.Time) EventTime {
	t = t.UTC()
	return EventTime{
		Sec:  uint32(t.Unix()),
		Nsec: uint32(t.Nanosecond()),
	}
}

// Time converts the EventTime back to a time.Time in UTC.
func (e EventTime) Time() time.Time {
	return time.Unix(int64(e.Sec), int64(e.Nsec)).UTC()
}
