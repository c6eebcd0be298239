package performance

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// kpsWindow is the trailing window KPS counts strikes in, in microseconds
const kpsWindow = int64(time.Second / time.Microsecond)

// Snapshot is a read-only copy of the performance state
type Snapshot struct {
	Held          []int   `json:"held"`
	Sustained     []int   `json:"sustained"`
	SustainOn     bool    `json:"sustain_on"`
	Transpose     int     `json:"transpose"`
	VelocityScale float64 `json:"velocity_scale"`
	Polyphony     int     `json:"polyphony"`
	KPS           float64 `json:"kps"`
}

// IsHeld reports whether pitch is held by at least one source
func (s Snapshot) IsHeld(pitch int) bool {
	_, found := slices.BinarySearch(s.Held, pitch)
	return found
}

// IsSustained reports whether pitch sounds only because of the pedal
func (s Snapshot) IsSustained(pitch int) bool {
	_, found := slices.BinarySearch(s.Sustained, pitch)
	return found
}

// Snapshot copies the state. KPS is computed against now.
func (s *State) Snapshot(now int64) Snapshot {
	return s.View().Snapshot(now)
}

// View is an immutable copy of the state that can be shared with other
// goroutines. It keeps the recent strike times so KPS stays current when read
// later.
type View struct {
	snap    Snapshot
	strikes []int64
}

// View captures the current state
func (s *State) View() *View {
	return &View{
		snap: Snapshot{
			Held:          slices.Sorted(maps.Keys(s.held)),
			Sustained:     slices.Sorted(maps.Keys(s.sustained)),
			SustainOn:     s.sustainOn,
			Transpose:     s.transpose,
			VelocityScale: s.velocityScale,
			Polyphony:     len(s.held) + len(s.sustained),
		},
		strikes: slices.Clone(s.strikes),
	}
}

// Snapshot returns the captured state with KPS computed lazily for now
func (v *View) Snapshot(now int64) Snapshot {
	snap := v.snap
	snap.Held = slices.Clone(v.snap.Held)
	snap.Sustained = slices.Clone(v.snap.Sustained)
	snap.KPS = kps(v.strikes, now)
	return snap
}

// kps counts strikes in (now-1s, now]
func kps(strikes []int64, now int64) float64 {
	cutoff := now - kpsWindow
	var n int
	for _, ts := range strikes {
		if ts > cutoff && ts <= now {
			n++
		}
	}
	return float64(n) / (float64(kpsWindow) / float64(time.Second/time.Microsecond))
}

// trimStrikes drops strikes that can no longer fall inside the window
func trimStrikes(strikes []int64, now int64) []int64 {
	cutoff := now - kpsWindow
	i := 0
	for i < len(strikes) && strikes[i] <= cutoff {
		i++
	}
	if i == 0 {
		return strikes
	}
	return append(strikes[:0], strikes[i:]...)
}

// Stats formats the stats bar values
func (s Snapshot) Stats(volume float64) map[string]string {
	return map[string]string{
		"volume":    fmt.Sprintf("%03d%%", int(volume*100+0.5)),
		"sustain":   onOff(s.SustainOn),
		"kps":       fmt.Sprintf("%04.1f", s.KPS),
		"held":      fmt.Sprintf("%03d", len(s.Held)),
		"polyphony": fmt.Sprintf("%03d", s.Polyphony),
		"transpose": fmt.Sprintf("%+03d", s.Transpose),
	}
}

// StatsOrder is the display order of Stats keys
var StatsOrder = []string{"volume", "sustain", "kps", "held", "polyphony", "transpose"}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
