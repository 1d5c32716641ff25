package appointment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MaxAvailabilityRange bounds a single availability query.
const MaxAvailabilityRange = 93

// EffectiveSlots resolves the bookable labels for date. An override for the
// date wins even when its list is empty; otherwise the template entry for
// the weekday applies. The result never aliases the inputs.
func EffectiveSlots(date Date, template WeeklyTemplate, overrides map[Date]DailySchedule) []string {
	if o, ok := overrides[date]; ok {
		return append([]string{}, o.Slots...)
	}
	return append([]string{}, template.SlotsFor(date)...)
}

// effectiveSlotsTx is EffectiveSlots against live transactional state.
func effectiveSlotsTx(ctx context.Context, tx Tx, date Date) ([]string, error) {
	override, err := tx.GetDailySchedule(ctx, date)
	if err == nil {
		return EffectiveSlots(date, WeeklyTemplate{}, map[Date]DailySchedule{date: *override}), nil
	}
	if !errors.Is(err, ErrScheduleNotFound) {
		return nil, fmt.Errorf("load daily schedule: %w", err)
	}

	tpl, err := tx.GetWeeklyTemplate(ctx)
	if err != nil {
		return nil, fmt.Errorf("load weekly template: %w", err)
	}
	return EffectiveSlots(date, *tpl, nil), nil
}

// EffectiveSlots returns the effective schedule for one date.
func (s *Service) EffectiveSlots(ctx context.Context, date Date) ([]string, error) {
	days, err := s.Availability(ctx, date, date)
	if err != nil {
		return nil, err
	}
	return days[0].Slots, nil
}

// Availability builds the calendar read model for [from, to]. It is served
// from the display cache when one is configured and may be briefly stale.
func (s *Service) Availability(ctx context.Context, from, to Date) ([]DayAvailability, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end %s before start %s", ErrInvalidDate, to, from)
	}
	if to.Time().Sub(from.Time()) > MaxAvailabilityRange*24*time.Hour {
		return nil, fmt.Errorf("%w: range longer than %d days", ErrInvalidDate, MaxAvailabilityRange)
	}

	if s.cache != nil {
		if days, ok := s.cache.GetRange(from, to); ok {
			return days, nil
		}
	}

	tpl, err := s.repo.GetWeeklyTemplate(ctx)
	if err != nil {
		return nil, fmt.Errorf("load weekly template: %w", err)
	}

	schedules, err := s.repo.ListDailySchedules(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load daily schedules: %w", err)
	}
	overrides := make(map[Date]DailySchedule, len(schedules))
	for _, ds := range schedules {
		overrides[ds.Date] = ds
	}

	blocks, err := s.repo.ListSlotBlocks(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load slot blocks: %w", err)
	}
	blocked := make(map[Date][]string)
	for _, b := range blocks {
		blocked[b.Date] = append(blocked[b.Date], b.Time)
	}

	today := s.today()
	var days []DayAvailability
	for d := from; !to.Before(d); d = d.AddDays(1) {
		day := DayAvailability{
			Date:     d,
			Slots:    EffectiveSlots(d, *tpl, overrides),
			Blocked:  blockedLabels(d, blocked[d]),
			Bookable: Bookable(d, today),
		}
		days = append(days, day)
		if s.cache != nil {
			s.cache.Put(day)
		}
	}
	return days, nil
}

// blockedLabels returns the known labels of a day's blocks in canonical
// order. Unknown labels are logged and left out.
func blockedLabels(d Date, labels []string) []string {
	known := make([]string, 0, len(labels))
	for _, l := range labels {
		if !IsSlotLabel(l) {
			log.Printf("availability date=%s ignoring slot block with unknown label %q", d, l)
			continue
		}
		known = append(known, l)
	}
	out, _ := NormalizeSlots(known)
	return out
}

// AvailabilityCache is a display-only cache of per-day availability.
type AvailabilityCache struct {
	lru *expirable.LRU[Date, DayAvailability]
}

func NewAvailabilityCache(size int, ttl time.Duration) *AvailabilityCache {
	if size <= 0 {
		size = 256
	}
	return &AvailabilityCache{lru: expirable.NewLRU[Date, DayAvailability](size, nil, ttl)}
}

func (c *AvailabilityCache) Put(day DayAvailability) {
	c.lru.Add(day.Date, copyDay(day))
}

// GetRange returns every day of [from, to] only if all of them are cached.
func (c *AvailabilityCache) GetRange(from, to Date) ([]DayAvailability, bool) {
	var days []DayAvailability
	for d := from; !to.Before(d); d = d.AddDays(1) {
		day, ok := c.lru.Get(d)
		if !ok {
			return nil, false
		}
		days = append(days, copyDay(day))
	}
	return days, true
}

// copyDay detaches the slot lists so cached entries never share memory
// with callers.
func copyDay(day DayAvailability) DayAvailability {
	day.Slots = append([]string{}, day.Slots...)
	day.Blocked = append([]string{}, day.Blocked...)
	return day
}

func (c *AvailabilityCache) Invalidate(d Date) {
	c.lru.Remove(d)
}

func (c *AvailabilityCache) Purge() {
	c.lru.Purge()
}

// WeeklyTemplate returns the stored template, empty if none was saved.
func (s *Service) WeeklyTemplate(ctx context.Context) (*WeeklyTemplate, error) {
	tpl, err := s.repo.GetWeeklyTemplate(ctx)
	if err != nil {
		return nil, fmt.Errorf("load weekly template: %w", err)
	}
	return tpl, nil
}
