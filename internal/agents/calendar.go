// Class schedule calendar: maps a citizen's class, workplace, and the local
// wall-clock time to what they should be doing.
package agents

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/talgya/serenissima/internal/catalog"
)

// Period is a part of the daily schedule.
type Period uint8

const (
	PeriodRest Period = iota
	PeriodWork
	PeriodLeisure
)

func (p Period) String() string {
	switch p {
	case PeriodRest:
		return "rest"
	case PeriodWork:
		return "work"
	case PeriodLeisure:
		return "leisure"
	}
	return fmt.Sprintf("Period(%d)", p)
}

type classSchedule struct {
	rest []catalog.HourRange
	work []catalog.HourRange
}

var schedules = map[SocialClass]classSchedule{
	ClassFacchini: {
		rest: []catalog.HourRange{{21, 5}},
		work: []catalog.HourRange{{5, 12}, {13, 20}},
	},
	ClassPopolani: {
		rest: []catalog.HourRange{{22, 6}},
		work: []catalog.HourRange{{6, 12}, {13, 18}},
	},
	ClassCittadini: {
		rest: []catalog.HourRange{{23, 7}},
		work: []catalog.HourRange{{7, 12}, {14, 18}},
	},
	ClassNobili: {
		rest: []catalog.HourRange{{0, 8}},
	},
	ClassForestieri: {
		rest: []catalog.HourRange{{23, 7}},
		work: []catalog.HourRange{{7, 12}, {13, 19}},
	},
}

// inRange tests containment on the 24h ring. Ranges are half-open and may
// wrap midnight.
func inRange(hour float64, r catalog.HourRange) bool {
	start, end := r.Start(), r.End()
	switch {
	case start == end:
		return false
	case start < end:
		return hour >= start && hour < end
	default:
		return hour >= start || hour < end
	}
}

func inAny(hour float64, ranges []catalog.HourRange) bool {
	for _, r := range ranges {
		if inRange(hour, r) {
			return true
		}
	}
	return false
}

func hourOf(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
}

// PeriodAt is the schedule rule. Published workplace hours replace the class
// Work ranges and win over Rest; Nobili never work by class alone. now must
// already be in the simulation's local time zone.
func PeriodAt(class SocialClass, workHours []catalog.HourRange, now time.Time) Period {
	hour := hourOf(now)
	sched := schedules[class]

	if len(workHours) > 0 && inAny(hour, workHours) {
		return PeriodWork
	}
	if inAny(hour, sched.rest) {
		return PeriodRest
	}
	if len(workHours) == 0 && class != ClassNobili && inAny(hour, sched.work) {
		return PeriodWork
	}
	return PeriodLeisure
}

// Calendar resolves periods in the simulation's time zone, looking workplace
// hours up in the catalog.
type Calendar struct {
	Location *time.Location
	Catalog  *catalog.Catalog
}

func (cal Calendar) local(now time.Time) time.Time {
	if cal.Location == nil {
		return now
	}
	return now.In(cal.Location)
}

func (cal Calendar) workHours(workplaceType string) []catalog.HourRange {
	if workplaceType == "" || cal.Catalog == nil {
		return nil
	}
	return cal.Catalog.WorkHours(workplaceType)
}

// Period returns the schedule period for a citizen. workplaceType is empty for
// citizens without a workplace.
func (cal Calendar) Period(class SocialClass, workplaceType string, now time.Time) Period {
	return PeriodAt(class, cal.workHours(workplaceType), cal.local(now))
}

// PeriodEnd returns the instant the current period gives way to a different
// one.
func (cal Calendar) PeriodEnd(class SocialClass, workplaceType string, now time.Time) time.Time {
	wh := cal.workHours(workplaceType)
	local := cal.local(now)
	current := PeriodAt(class, wh, local)
	hour := hourOf(local)

	sched := schedules[class]
	var ranges []catalog.HourRange
	ranges = append(ranges, wh...)
	ranges = append(ranges, sched.rest...)
	ranges = append(ranges, sched.work...)

	var deltas []float64
	for _, r := range ranges {
		for _, b := range []float64{r.Start(), r.End()} {
			d := math.Mod(b-hour+24, 24)
			if d <= 1e-9 {
				d = 24
			}
			deltas = append(deltas, d)
		}
	}
	sort.Float64s(deltas)

	for _, d := range deltas {
		at := local.Add(time.Duration(d * float64(time.Hour))).Round(time.Second)
		if PeriodAt(class, wh, at) != current {
			return at
		}
	}
	return local.Add(24 * time.Hour)
}
