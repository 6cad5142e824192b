// Package catalog scrapes family listings from the CAZy catalog website.
package catalog

import "fmt"

// FormatError reports catalog markup or cached data the scraper cannot interpret.
type FormatError struct {
	Group   string
	Message string
	Cause   error
}

func (e *FormatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("catalog format error for %s: %s: %v", e.Group, e.Message, e.Cause)
	}
	return fmt.Sprintf("catalog format error for %s: %s", e.Group, e.Message)
}

func (e *FormatError) Unwrap() error {
	return e.Cause
}

// FamilyError reports a family name that cannot be scraped.
type FamilyError struct {
	Family  string
	Message string
}

func (e *FamilyError) Error() string {
	return fmt.Sprintf("invalid family %q: %s", e.Family, e.Message)
}
