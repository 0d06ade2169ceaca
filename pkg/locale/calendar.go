package locale

import (
	"fmt"
	"time"

	ptime "github.com/yaa110/go-persian-calendar"
)

var jalaliMonths = [12]string{
	"فروردین", "اردیبهشت", "خرداد", "تیر", "مرداد", "شهریور",
	"مهر", "آبان", "آذر", "دی", "بهمن", "اسفند",
}

// JalaliDate is a date in the Solar Hijri calendar.
type JalaliDate struct {
	Year  int
	Month int
	Day   int
}

// MonthName returns the Persian month name.
func (d JalaliDate) MonthName() string {
	if d.Month < 1 || d.Month > 12 {
		return ""
	}
	return jalaliMonths[d.Month-1]
}

// ToJalali converts the calendar date of t (in t's own location) to Solar Hijri.
func ToJalali(t time.Time) JalaliDate {
	pt := ptime.New(t)
	return JalaliDate{Year: pt.Year(), Month: int(pt.Month()), Day: pt.Day()}
}

// FormatDate renders t as a long Persian date, e.g. "۱۱ دی ۱۴۰۲".
// A nil location means the process local timezone.
func FormatDate(t time.Time, loc *time.Location) string {
	d := ToJalali(inLocation(t, loc))
	return Digits(fmt.Sprintf("%d %s %d", d.Day, d.MonthName(), d.Year))
}

// FormatDateTime renders t as a long Persian date with hour and minute.
func FormatDateTime(t time.Time, loc *time.Location) string {
	local := inLocation(t, loc)
	return FormatDate(local, local.Location()) + "، ساعت " + Digits(local.Format("15:04"))
}

// FormatISO parses an RFC 3339 timestamp and renders it with FormatDateTime.
// Unparseable input is returned unchanged.
func FormatISO(value string, loc *time.Location) string {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return FormatDateTime(parsed, loc)
}

func inLocation(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc)
}
