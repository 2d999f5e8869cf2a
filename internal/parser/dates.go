package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	reISODate      = regexp.MustCompile(`\b(\d{4})\s*[-/.]\s*(\d{1,2})\s*[-/.]\s*(\d{1,2})\b`)
	reNumericDate  = regexp.MustCompile(`\b(\d{1,2})\s*[/.\-]\s*(\d{1,2})\s*[/.\-]\s*(\d{4}|\d{2})\b`)
	reDayMonthYear = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+([a-z]{3,9})\.?,?\s+(\d{4})\b`)
	reMonthDayYear = regexp.MustCompile(`(?i)\b([a-z]{3,9})\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	monthsByPrefix = []string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}
)

// findDate returns the first date in s formatted as dd/mm/yyyy. Year-first
// dates are read as yyyy-mm-dd. Calendar validity is not checked here; the
// normalizer owns that decision.
func findDate(s string) (string, bool) {
	if iso := reISODate.FindStringSubmatchIndex(s); iso != nil {
		num := reNumericDate.FindStringIndex(s)
		if num == nil || iso[0] <= num[0] {
			return formatDate(s[iso[6]:iso[7]], s[iso[4]:iso[5]], s[iso[2]:iso[3]]), true
		}
	}
	if m := reNumericDate.FindStringSubmatch(s); m != nil {
		return formatDate(m[1], m[2], m[3]), true
	}
	if m := reDayMonthYear.FindStringSubmatch(s); m != nil {
		if mon := monthNumber(m[2]); mon > 0 {
			return formatDate(m[1], strconv.Itoa(mon), m[3]), true
		}
	}
	if m := reMonthDayYear.FindStringSubmatch(s); m != nil {
		if mon := monthNumber(m[1]); mon > 0 {
			return formatDate(m[2], strconv.Itoa(mon), m[3]), true
		}
	}
	return "", false
}

func formatDate(day, month, year string) string {
	d, _ := strconv.Atoi(day)
	m, _ := strconv.Atoi(month)
	y, _ := strconv.Atoi(year)
	if len(year) == 2 {
		y += 2000
	}
	return fmt.Sprintf("%02d/%02d/%04d", d, m, y)
}

func monthNumber(name string) int {
	n := strings.ToLower(name)
	if len(n) < 3 {
		return 0
	}
	for i, p := range monthsByPrefix {
		if strings.HasPrefix(n, p) {
			return i + 1
		}
	}
	return 0
}
