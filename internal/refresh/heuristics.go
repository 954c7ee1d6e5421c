package refresh

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
	"golang.org/x/text/cases"
)

// IsDate reports whether s as a whole reads as a calendar date, optionally
// with a time of day. Bare numbers, times and titles that merely start with
// a date ("2001: A Space Odyssey") are not dates.
func IsDate(s string) (ok bool) {
	s = strings.TrimSpace(s)
	if s == "" || isDigits(s) || !dateShaped(s) {
		return false
	}

	// dateparse panics on some malformed input.
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	_, err := dateparse.ParseIn(s, time.UTC)
	return err == nil
}

// numericDate matches three numbers joined by dashes, slashes or dots.
var numericDate = regexp.MustCompile(`\d{1,4}[-/.]\d{1,2}[-/.]\d{1,4}`)

var monthNames = map[string]bool{
	"jan": true, "january": true, "feb": true, "february": true, "mar": true, "march": true,
	"apr": true, "april": true, "may": true, "jun": true, "june": true, "jul": true, "july": true,
	"aug": true, "august": true, "sep": true, "sept": true, "september": true,
	"oct": true, "october": true, "nov": true, "november": true, "dec": true, "december": true,
}

// dateWords are the other words a date or timestamp may carry.
var dateWords = map[string]bool{
	"mon": true, "monday": true, "tue": true, "tues": true, "tuesday": true,
	"wed": true, "wednesday": true, "thu": true, "thur": true, "thurs": true, "thursday": true,
	"fri": true, "friday": true, "sat": true, "saturday": true, "sun": true, "sunday": true,
	"am": true, "pm": true, "t": true, "z": true, "utc": true, "gmt": true,
	"st": true, "nd": true, "rd": true, "th": true, "of": true,
}

// dateShaped reports whether every word of s belongs to a date and s holds a
// full date: either a numeric day-month-year or a month name with a number.
func dateShaped(s string) bool {
	var hasMonth, hasNumber bool
	for _, word := range splitWords(s) {
		r := []rune(word)[0]
		if unicode.IsDigit(r) {
			hasNumber = true
			continue
		}
		lower := strings.ToLower(word)
		switch {
		case monthNames[lower]:
			hasMonth = true
		case dateWords[lower]:
		default:
			return false
		}
	}
	return (hasMonth && hasNumber) || numericDate.MatchString(s)
}

// splitWords splits s into runs of letters and runs of digits, dropping
// everything else.
func splitWords(s string) []string {
	var words []string
	start := -1
	digits := false
	for i, r := range s {
		letter, digit := unicode.IsLetter(r), unicode.IsDigit(r)
		if start >= 0 && (!(letter || digit) || digit != digits) {
			words = append(words, s[start:i])
			start = -1
		}
		if start < 0 && (letter || digit) {
			start, digits = i, digit
		}
	}
	if start >= 0 {
		words = append(words, s[start:])
	}
	return words
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// isBlank reports whether s is empty or whitespace only.
func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// firstPrefixFold returns the first fragment s starts with, ignoring case.
// Casers are not safe for concurrent use, so one is made per call.
func firstPrefixFold(s string, fragments []string) (string, bool) {
	if s == "" {
		return "", false
	}
	fold := cases.Fold()
	folded := fold.String(s)
	for _, f := range fragments {
		if strings.HasPrefix(folded, fold.String(f)) {
			return f, true
		}
	}
	return "", false
}

// firstContainsFold returns the first fragment contained in s, ignoring case.
func firstContainsFold(s string, fragments []string) (string, bool) {
	if s == "" {
		return "", false
	}
	fold := cases.Fold()
	folded := fold.String(s)
	for _, f := range fragments {
		if strings.Contains(folded, fold.String(f)) {
			return f, true
		}
	}
	return "", false
}

func minutesSince(t, now time.Time) float64 {
	return now.Sub(t).Minutes()
}
