package sources

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

var monthsES = map[time.Month]string{
	time.January: "ENE", time.February: "FEB", time.March: "MAR",
	time.April: "ABR", time.May: "MAY", time.June: "JUN",
	time.July: "JUL", time.August: "AGO", time.September: "SEP",
	time.October: "OCT", time.November: "NOV", time.December: "DIC",
}

var daysES = map[time.Weekday]string{
	time.Monday: "LUN", time.Tuesday: "MAR", time.Wednesday: "MIÉ",
	time.Thursday: "JUE", time.Friday: "VIE", time.Saturday: "SÁB",
	time.Sunday: "DOM",
}

type agendaLine struct {
	sortKey string
	text    string
}

// FormatAgenda renders events as a day-bucketed agenda view. Multi-day
// all-day events appear under every day they touch inside the range.
func FormatAgenda(events []Event, now time.Time, daysAhead int, loc *time.Location) string {
	now = now.In(loc)
	rangeStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	rangeEnd := rangeStart.AddDate(0, 0, daysAhead)

	buckets := map[string][]agendaLine{}
	for _, ev := range events {
		summary := ev.Summary
		if summary == "" {
			summary = "Sin título"
		}

		var line agendaLine
		var dayStart, dayEnd time.Time
		if ev.AllDay {
			line = agendaLine{sortKey: "00:00", text: "🔵 Todo el día | " + summary}
			dayStart = dateOnly(ev.Start, loc)
			// Google's all-day end date is exclusive.
			dayEnd = dateOnly(ev.End.AddDate(0, 0, -1), loc)
		} else {
			start := ev.Start.In(loc)
			end := ev.End.In(loc)
			line = agendaLine{
				sortKey: start.Format("15:04"),
				text:    fmt.Sprintf("🔵 %s - %s | %s", start.Format("15:04"), end.Format("15:04"), summary),
			}
			dayStart = dateOnly(start, loc)
			dayEnd = dayStart
		}

		if dayStart.Before(rangeStart) {
			dayStart = rangeStart
		}
		if dayEnd.After(rangeEnd) {
			dayEnd = rangeEnd
		}
		for d := dayStart; !d.After(dayEnd); d = d.AddDate(0, 0, 1) {
			key := d.Format("2006-01-02")
			buckets[key] = append(buckets[key], line)
		}
	}

	var keys []string
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for _, key := range keys {
		d, _ := time.ParseInLocation("2006-01-02", key, loc)
		out = append(out, fmt.Sprintf("🗓 **%d %s, %s**", d.Day(), monthsES[d.Month()], daysES[d.Weekday()]))

		lines := buckets[key]
		sort.SliceStable(lines, func(i, j int) bool { return lines[i].sortKey < lines[j].sortKey })
		for _, l := range lines {
			out = append(out, l.text)
		}
		out = append(out, "")
	}

	if len(out) == 0 {
		return "No hay eventos próximos."
	}
	return strings.Join(out, "\n")
}

// FormatTasks renders pending tasks as one line each, with due dates in the
// assistant's timezone.
func FormatTasks(tasks []Task, loc *time.Location) string {
	if len(tasks) == 0 {
		return "Sin tareas pendientes"
	}
	var out []string
	for _, t := range tasks {
		title := t.Title
		if title == "" {
			title = "Sin título"
		}
		line := "📋 " + title
		if !t.Due.IsZero() {
			line += fmt.Sprintf(" (vence: %s)", t.Due.In(loc).Format("02/01/2006"))
		}
		if t.ListName != "" && t.ListName != "My Tasks" {
			line += fmt.Sprintf(" [%s]", t.ListName)
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func dateOnly(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
