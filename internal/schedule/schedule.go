// Package schedule describes the clinic's fixed daily slot grid and the
// duration based price table.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar date format used in paths and requests.
const DateLayout = "2006-01-02"

// DefaultTimes is the daily grid offered for every doctor.
var DefaultTimes = []string{"10:00", "11:00", "13:00", "14:00", "15:00", "16:00", "17:00", "18:00", "19:00", "20:00"}

var (
	ErrInvalidTime     = errors.New("schedule: invalid time label")
	ErrInvalidDate     = errors.New("schedule: invalid date")
	ErrInvalidDuration = errors.New("schedule: unsupported duration")
)

// Grid is an ordered set of HH:MM start times.
type Grid struct {
	labels []string
	index  map[string]struct{}
}

// NewGrid validates labels and orders them by time of day.
func NewGrid(labels []string) (*Grid, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("schedule: grid: %w: no times", ErrInvalidTime)
	}
	g := &Grid{index: make(map[string]struct{}, len(labels))}
	for _, raw := range labels {
		label := strings.TrimSpace(raw)
		if _, err := Minutes(label); err != nil {
			return nil, err
		}
		if _, dup := g.index[label]; dup {
			continue
		}
		g.index[label] = struct{}{}
		g.labels = append(g.labels, label)
	}
	sort.Slice(g.labels, func(i, j int) bool {
		mi, _ := Minutes(g.labels[i])
		mj, _ := Minutes(g.labels[j])
		return mi < mj
	})
	return g, nil
}

// DefaultGrid returns the grid built from DefaultTimes.
func DefaultGrid() *Grid {
	g, err := NewGrid(DefaultTimes)
	if err != nil {
		panic(err)
	}
	return g
}

// Contains reports whether label is one of the grid's times.
func (g *Grid) Contains(label string) bool {
	_, ok := g.index[label]
	return ok
}

// Labels returns the times in order.
func (g *Grid) Labels() []string {
	return append([]string(nil), g.labels...)
}

// Minutes converts "HH:MM" to minutes after midnight.
func Minutes(label string) (int, error) {
	hh, mm, ok := strings.Cut(label, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, label)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, label)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, label)
	}
	return h*60 + m, nil
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil || d.Format(DateLayout) != s {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// StartOf returns the instant a slot begins in loc.
func StartOf(date, label string, loc *time.Location) (time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	mins, err := Minutes(label)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year(), d.Month(), d.Day(), mins/60, mins%60, 0, 0, loc), nil
}

// Today returns the calendar date of now in loc.
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(DateLayout)
}

// PriceTable maps a session length in minutes to its price.
type PriceTable map[int]int

// DefaultPrices is 500 for 30 minutes and 900 for 60.
func DefaultPrices() PriceTable {
	return PriceTable{30: 500, 60: 900}
}

// ParsePriceTable parses "30:500,60:900".
func ParsePriceTable(s string) (PriceTable, error) {
	table := PriceTable{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, p, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("schedule: price entry %q: want minutes:price", part)
		}
		minutes, err := strconv.Atoi(strings.TrimSpace(d))
		if err != nil || minutes <= 0 {
			return nil, fmt.Errorf("schedule: price entry %q: bad minutes", part)
		}
		price, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || price < 0 {
			return nil, fmt.Errorf("schedule: price entry %q: bad price", part)
		}
		table[minutes] = price
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("schedule: price table %q is empty", s)
	}
	return table, nil
}

// PriceFor returns the price of a session length.
func (p PriceTable) PriceFor(duration int) (int, bool) {
	price, ok := p[duration]
	return price, ok
}

// Durations returns the offered session lengths in ascending order.
func (p PriceTable) Durations() []int {
	out := make([]int, 0, len(p))
	for d := range p {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}
