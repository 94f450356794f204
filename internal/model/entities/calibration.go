package entities

import (
	"fmt"
	"time"
)

// DefaultSampleTarget is the number of samples averaged into an offset when
// a collection round does not ask for a specific count.
const DefaultSampleTarget = 5

// AngleCalibration holds the zero-offset of one tilt sensor and the state of
// the collection round that produces it.
type AngleCalibration struct {
	DoorNum int `gorm:"primaryKey;autoIncrement:false" json:"doorNum"`

	Applied   bool       `json:"applied"`
	OffsetX   float64    `json:"offsetX"` // valid only when Applied
	OffsetY   float64    `json:"offsetY"`
	AppliedAt *time.Time `json:"appliedAt"`
	Note      string     `json:"note"` // how the current state came about

	Collecting   bool       `json:"collecting"`
	SampleTarget int        `gorm:"not null;default:5" json:"sampleTarget"`
	SampleCount  int        `gorm:"not null;default:0" json:"sampleCount"`
	SumX         float64    `json:"sumX"`
	SumY         float64    `json:"sumY"`
	StartedAt    *time.Time `json:"startedAt"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewAngleCalibration returns the record a sensor gets before any round is run.
func NewAngleCalibration(doorNum int) AngleCalibration {
	return AngleCalibration{DoorNum: doorNum, SampleTarget: DefaultSampleTarget}
}

// Offset returns the offset to subtract from raw readings, zero when no
// offset has been committed yet.
func (c AngleCalibration) Offset() (x, y float64) {
	if !c.Applied {
		return 0, 0
	}
	return c.OffsetX, c.OffsetY
}

// Target returns the sample target, falling back to the default for records
// written without one.
func (c AngleCalibration) Target() int {
	if c.SampleTarget <= 0 {
		return DefaultSampleTarget
	}
	return c.SampleTarget
}

// Accumulate adds one raw sample to an in-progress round. When the round
// reaches its target the averages become the committed offset and the
// record leaves collecting mode. It reports whether the round completed.
// Records that are not collecting are returned unchanged.
func (c AngleCalibration) Accumulate(rawX, rawY float64, now time.Time) (AngleCalibration, bool) {
	if !c.Collecting {
		return c, false
	}
	c.SampleCount++
	c.SumX += rawX
	c.SumY += rawY
	if c.SampleCount < c.Target() {
		return c, false
	}
	c.Applied = true
	c.Collecting = false
	c.OffsetX = c.SumX / float64(c.SampleCount)
	c.OffsetY = c.SumY / float64(c.SampleCount)
	at := now
	c.AppliedAt = &at
	c.Note = fmt.Sprintf("offset averaged from %d samples", c.SampleCount)
	return c, true
}
