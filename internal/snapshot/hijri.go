package snapshot

import (
	"fmt"
	"time"
)

// Civil (tabular) Islamic calendar conversion. Good to ±1 day of the
// observational Umm al-Qura dates, which is what the header card needs.

var hijriMonthNames = [...]string{
	"محرم", "صفر", "ربيع الأول", "ربيع الآخر",
	"جمادى الأولى", "جمادى الآخرة", "رجب", "شعبان",
	"رمضان", "شوال", "ذو القعدة", "ذو الحجة",
}

var arabicWeekdays = map[time.Weekday]string{
	time.Sunday:    "الأحد",
	time.Monday:    "الاثنين",
	time.Tuesday:   "الثلاثاء",
	time.Wednesday: "الأربعاء",
	time.Thursday:  "الخميس",
	time.Friday:    "الجمعة",
	time.Saturday:  "السبت",
}

var arabicMonths = [...]string{
	"يناير", "فبراير", "مارس", "أبريل", "مايو", "يونيو",
	"يوليو", "أغسطس", "سبتمبر", "أكتوبر", "نوفمبر", "ديسمبر",
}

// julianDayNumber for a Gregorian date.
func julianDayNumber(y, m, d int) int {
	a := (14 - m) / 12
	yy := y + 4800 - a
	mm := m + 12*a - 3
	return d + (153*mm+2)/5 + 365*yy + yy/4 - yy/100 + yy/400 - 32045
}

// hijriFromJDN converts a Julian day number to the civil Islamic calendar.
func hijriFromJDN(jdn int) (year, month, day int) {
	// Epoch: 1 Muharram 1 AH = 16 July 622 CE (civil, Friday epoch).
	l := jdn - 1948440 + 10632
	n := (l - 1) / 10631
	l = l - 10631*n + 354
	j := ((10985-l)/5316)*((50*l)/17719) + (l/5670)*((43*l)/15238)
	l = l - ((30-j)/15)*((17719*j)/50) - (j/16)*((15238*j)/43) + 29
	month = (24 * l) / 709
	day = l - (709*month)/24
	year = 30*n + j - 30
	return year, month, day
}

// hijriInfo builds the date_info.hijri block for a local date.
func hijriInfo(t time.Time) HijriInfo {
	y, m, d := t.Date()
	hy, hm, hd := hijriFromJDN(julianDayNumber(y, int(m), d))
	name := ""
	if hm >= 1 && hm <= 12 {
		name = hijriMonthNames[hm-1]
	}
	return HijriInfo{
		Date:      fmt.Sprintf("%04d-%02d-%02d", hy, hm, hd),
		Day:       hd,
		Month:     hm,
		MonthName: name,
		Year:      hy,
	}
}

// gregorianInfo builds the date_info.gregorian block. Weekday follows the
// DB convention Monday=1..Sunday=7.
func gregorianInfo(t time.Time) GregorianInfo {
	return GregorianInfo{
		Date:           t.Format("2006-01-02"),
		Weekday:        isoWeekday(t),
		WeekdayDisplay: arabicWeekdays[t.Weekday()],
		MonthName:      arabicMonths[t.Month()-1],
	}
}

func isoWeekday(t time.Time) int {
	wd := int(t.Weekday()) // Sunday=0
	if wd == 0 {
		return 7
	}
	return wd
}
