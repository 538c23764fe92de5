package core

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// Compare orders bills most urgent first. It returns a negative number when a
// sorts before b, a positive number when b sorts before a, and zero only when
// a and b carry the same ID.
//
// Dated bills come before undated ones and are compared by calendar day.
// Within the same day (or when both are undated) a present amount beats an
// absent one and larger amounts come first. The ID string breaks all
// remaining ties.
func Compare(a, b Bill) int {
	switch {
	case a.DueDate != nil && b.DueDate != nil:
		if c := compareDay(*a.DueDate, *b.DueDate); c != 0 {
			return c
		}
	case a.DueDate != nil:
		return -1
	case b.DueDate != nil:
		return 1
	}
	return compareAmounts(a, b)
}

// Less reports whether a sorts strictly before b.
func Less(a, b Bill) bool {
	return Compare(a, b) < 0
}

// SortBills sorts bills in place, most urgent first.
func SortBills(bills []Bill) {
	slices.SortFunc(bills, Compare)
}

func compareAmounts(a, b Bill) int {
	switch {
	case a.Amount != nil && b.Amount != nil:
		// descending
		if c := b.Amount.Cmp(*a.Amount); c != 0 {
			return c
		}
	case a.Amount != nil:
		return -1
	case b.Amount != nil:
		return 1
	}
	return strings.Compare(a.ID.String(), b.ID.String())
}

// compareDay compares the calendar days of a and b, each read in its own location.
func compareDay(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if c := cmp.Compare(ay, by); c != 0 {
		return c
	}
	if c := cmp.Compare(am, bm); c != 0 {
		return c
	}
	return cmp.Compare(ad, bd)
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return compareDay(a, b) == 0
}
