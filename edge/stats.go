package edge

import "fmt"

// Stats is a point in time view of the traffic on an edge.
type Stats struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Collected   int64  `json:"collected"`
	Emitted     int64  `json:"emitted"`
}

// ReadStats returns the current statistics of e.
func ReadStats(e Edge) Stats {
	return Stats{
		Origin:      e.Origin(),
		Destination: e.Destination(),
		Collected:   e.Collected(),
		Emitted:     e.Emitted(),
	}
}

// Buffered is the number of rows put but not yet read.
func (s Stats) Buffered() int64 {
	return s.Collected - s.Emitted
}

func (s Stats) String() string {
	return fmt.Sprintf("%s -> %s collected=%d emitted=%d", s.Origin, s.Destination, s.Collected, s.Emitted)
}
