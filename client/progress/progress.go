// Package progress samples transfer counters of an in-flight HTTP
// exchange and reports them as human readable [Progress] snapshots.
package progress

import (
	"fmt"
	"math"
)

// Unit is a transfer speed unit.
type Unit int

const (
	B Unit = iota
	KB
	MB
	GB
	TB
)

var units = [...]struct {
	name      string
	magnitude float64
}{
	B:  {"b", 1},
	KB: {"kB", 1e3},
	MB: {"MB", 1e6},
	GB: {"GB", 1e9},
	TB: {"TB", 1e12},
}

func (u Unit) String() string {
	if u < B || u > TB {
		return fmt.Sprintf("unit(%d)", int(u))
	}
	return units[u].name
}

// Magnitude returns the number of bytes in one u.
func (u Unit) Magnitude() float64 {
	if u < B || u > TB {
		return 1
	}
	return units[u].magnitude
}

// SpeedUnit picks the largest unit whose magnitude bytes exceeds and
// returns bytes expressed in it, rounded.
func SpeedUnit(bytes float64) (float64, Unit) {
	for u := TB; u > B; u-- {
		if bytes > u.Magnitude() {
			return math.Round(bytes / u.Magnitude()), u
		}
	}
	return math.Round(bytes), B
}

// Progress is a snapshot of a transfer.
type Progress struct {
	Position   int64
	Length     int64
	Percentage float64
	Speed      float64
	Unit       Unit
}

func (p Progress) String() string {
	return fmt.Sprintf("%.1f%% (%d/%d) %.0f %s/s", p.Percentage, p.Position, p.Length, p.Speed, p.Unit)
}

// Sink receives progress snapshots. It is called from the sampler's
// goroutine, never concurrently with itself.
type Sink func(Progress)

// Transfer holds the raw byte counters of one exchange. A negative
// total means the length is unknown.
type Transfer struct {
	Uploaded      int64
	UploadTotal   int64
	Downloaded    int64
	DownloadTotal int64
	HasBody       bool
}

// Uploading reports whether the request body is still being sent.
func (t Transfer) Uploading() bool {
	if !t.HasBody {
		return false
	}
	if t.UploadTotal < 0 {
		return t.Downloaded == 0
	}
	return t.Uploaded < t.UploadTotal
}

// Position returns the byte offset and length of the active phase.
func (t Transfer) Position() (int64, int64) {
	if t.Uploading() {
		return t.Uploaded, t.UploadTotal
	}
	return t.Downloaded, t.DownloadTotal
}

// Percentage of the active phase, 0 when its length is unknown.
func (t Transfer) Percentage() float64 {
	pos, length := t.Position()
	if length <= 0 {
		return 0
	}
	return math.Min(100, float64(pos)/float64(length)*100)
}

// Moved returns the total bytes moved in both directions.
func (t Transfer) Moved() int64 {
	return t.Uploaded + t.Downloaded
}

// Complete returns the final snapshot of a finished transfer.
func Complete(t Transfer) Progress {
	length := t.DownloadTotal
	if length < t.Downloaded {
		length = t.Downloaded
	}
	return Progress{
		Position:   t.Downloaded,
		Length:     length,
		Percentage: 100,
		Unit:       B,
	}
}
