/*
	Vestry
	Copyright (c) 2025 The Vestry Authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package calendar derives the month-grid view of the event calendar.
// It is pure local state derivation: events come from the API and the
// grid is recomputed from scratch for whatever month is displayed.
package calendar

import (
	"fmt"
	"time"

	"github.com/vestryhq/vestry/cms"
)

// gridCells is the fixed size of a month view: 6 weeks of 7 days, so the
// layout never reflows between months.
const gridCells = 42

// Cell is one square of the month grid. Day is zero for the leading and
// trailing blanks that pad the first and last weeks.
type Cell struct {
	Day    int         `json:"day,omitempty"`
	Date   string      `json:"date,omitempty"` // "2006-01-02"
	Events []cms.Event `json:"events,omitempty"`
}

// Month is the derived view of one calendar month.
type Month struct {
	Year  int    `json:"year"`
	Month int    `json:"month"` // 1..12
	Cells []Cell `json:"cells"` // always 42
}

// MonthGrid buckets events into a 42-cell grid for the given month.
// Weeks start on Sunday. Events dated outside the month are ignored.
func MonthGrid(year int, month time.Month, events []cms.Event) Month {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.Local)
	daysInMonth := first.AddDate(0, 1, -1).Day()
	startWeekday := int(first.Weekday()) // Sunday == 0

	byDate := make(map[string][]cms.Event, len(events))
	for _, ev := range events {
		byDate[ev.Date] = append(byDate[ev.Date], ev)
	}

	cells := make([]Cell, gridCells)
	for i := range cells {
		day := i - startWeekday + 1
		if day < 1 || day > daysInMonth {
			continue
		}
		date := fmt.Sprintf("%04d-%02d-%02d", year, int(month), day)
		cells[i] = Cell{
			Day:    day,
			Date:   date,
			Events: byDate[date],
		}
	}

	return Month{Year: year, Month: int(month), Cells: cells}
}

// Bounds returns the first and last dates of the month as "2006-01-02"
// strings, for use as an event-listing range.
func Bounds(year int, month time.Month) (from, to string) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.Local)
	last := first.AddDate(0, 1, -1)
	return first.Format("2006-01-02"), last.Format("2006-01-02")
}
