package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicore/clinic-platform/internal/directory"
	"github.com/clinicore/clinic-platform/internal/timeutil"
)

// Directory is the read-only identity and configuration surface the core
// consumes. *directory.Repository satisfies it.
type Directory interface {
	UserByID(ctx context.Context, id int64) (*directory.User, error)
	DoctorByID(ctx context.Context, id int64) (*directory.Doctor, error)
	DoctorByUserID(ctx context.Context, userID int64) (*directory.Doctor, error)
	ActiveVirtualSettings(ctx context.Context) (*directory.VirtualSettings, error)
	VirtualConsultationPriceCents(ctx context.Context) (int64, error)
}

// OccupancyReader exposes the appointment reads the calculator needs.
type OccupancyReader interface {
	ListActiveInWindow(ctx context.Context, p ProviderKey, from, to time.Time) ([]*Appointment, error)
}

// Slot is one bookable 30-minute bucket with its current load.
type Slot struct {
	Start     time.Time `json:"startInstant"`
	End       time.Time `json:"endInstant"`
	Label     string    `json:"localTimeLabel"`
	Booked    int       `json:"bookedCount"`
	Capacity  int       `json:"capacity"`
	Available bool      `json:"available"`
}

// SlotDay is the calculator output for one provider, date and kind.
type SlotDay struct {
	Date    string `json:"date"`
	Weekend bool   `json:"weekend"`
	Slots   []Slot `json:"slots"`
}

// SlotCalculator computes the bookable slot grid for a provider and date.
type SlotCalculator struct {
	occupancy OccupancyReader
	directory Directory
	zone      *timeutil.Zone
	now       func() time.Time
}

// NewSlotCalculator wires the calculator.
func NewSlotCalculator(occupancy OccupancyReader, dir Directory, zone *timeutil.Zone) *SlotCalculator {
	return &SlotCalculator{
		occupancy: occupancy,
		directory: dir,
		zone:      zone,
		now:       time.Now,
	}
}

// resolveWindow returns the provider's daily working window as minutes of the
// local day. Doctor windows come from the profile; the pool window from the
// active admin settings.
func resolveWindow(ctx context.Context, dir Directory, p ProviderKey) (int, int, error) {
	var startClock, endClock string
	if p.Pool() {
		vs, err := dir.ActiveVirtualSettings(ctx)
		if err != nil {
			if err == directory.ErrVirtualSettingsNotFound {
				return 0, 0, ErrWorkingHoursNotConfigured
			}
			return 0, 0, fmt.Errorf("resolve pool window: %w", err)
		}
		startClock, endClock = vs.StartTime, vs.EndTime
	} else {
		doc, err := dir.DoctorByID(ctx, *p.DoctorID)
		if err != nil {
			if err == directory.ErrDoctorNotFound {
				return 0, 0, ErrDoctorUnavailable
			}
			return 0, 0, fmt.Errorf("resolve doctor window: %w", err)
		}
		if !doc.Approved {
			return 0, 0, ErrDoctorUnavailable
		}
		startClock, endClock = doc.StartTime, doc.EndTime
	}

	if startClock == "" || endClock == "" {
		return 0, 0, ErrWorkingHoursNotConfigured
	}
	startMin, err := timeutil.ParseClock(startClock)
	if err != nil {
		return 0, 0, ErrWorkingHoursNotConfigured
	}
	endMin, err := timeutil.ParseClock(endClock)
	if err != nil {
		return 0, 0, ErrWorkingHoursNotConfigured
	}
	if endMin <= startMin {
		return 0, 0, ErrWorkingHoursNotConfigured
	}
	return startMin, endMin, nil
}

// DaySlots computes the ordered slot grid for the provider on a local
// calendar date (YYYY-MM-DD).
func (c *SlotCalculator) DaySlots(ctx context.Context, p ProviderKey, date string, kind Kind) (*SlotDay, error) {
	day, err := c.zone.ParseDate(date)
	if err != nil {
		return nil, ErrInvalidDateTime
	}

	now := c.now()
	dayStart, _ := c.zone.DayBounds(day)
	todayStart, _ := c.zone.DayBounds(now)
	if dayStart.Before(todayStart) {
		return nil, ErrPastDate
	}

	out := &SlotDay{Date: date, Slots: []Slot{}}

	// Doctor-bound weekends are closed; the virtual pool runs seven days.
	if !p.Pool() && c.zone.IsWeekend(day) {
		out.Weekend = true
		return out, nil
	}

	startMin, endMin, err := resolveWindow(ctx, c.directory, p)
	if err != nil {
		return nil, err
	}

	windowStart := c.zone.At(day, startMin)
	windowEnd := c.zone.At(day, endMin)

	booked, err := c.occupancy.ListActiveInWindow(ctx, p, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	bySlot := make(map[int64]int, len(booked))
	for _, a := range booked {
		bySlot[c.zone.SlotStart(a.ScheduledAt).Unix()]++
	}

	sameDay := c.zone.SameDay(day, now)
	horizon := now.Add(bookingHorizon)
	capacity := kind.Capacity()

	for start := windowStart; !start.Add(timeutil.SlotLength).After(windowEnd); start = start.Add(timeutil.SlotLength) {
		if sameDay && start.Before(horizon) {
			continue
		}
		count := bySlot[start.Unix()]
		out.Slots = append(out.Slots, Slot{
			Start:     start,
			End:       start.Add(timeutil.SlotLength),
			Label:     c.zone.FormatClock(start),
			Booked:    count,
			Capacity:  capacity,
			Available: count < capacity,
		})
	}
	return out, nil
}
