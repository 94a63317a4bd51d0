package vector

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	// DefaultMaxRecordChars is the largest record content accepted, in characters.
	DefaultMaxRecordChars = 32000
	// DefaultMaxMetadataKeys is the largest metadata key count accepted per record.
	DefaultMaxMetadataKeys = 16
)

// Limits are the per-record input limits a backend enforces before embedding.
type Limits struct {
	MaxRecordChars  int
	MaxMetadataKeys int
}

// DefaultLimits returns the limits backends use unless configured otherwise.
func DefaultLimits() Limits {
	return Limits{MaxRecordChars: DefaultMaxRecordChars, MaxMetadataKeys: DefaultMaxMetadataKeys}
}

// Check validates records against the limits. Oversized content is
// KindTooLarge; a missing ID or too many metadata keys is KindPermanent.
func (l Limits) Check(op string, records []Record) error {
	for _, r := range records {
		if r.ID == "" {
			return NewError(op, KindPermanent, errors.New("record id is empty"))
		}
		if n := utf8.RuneCountInString(r.Content); l.MaxRecordChars > 0 && n > l.MaxRecordChars {
			return NewError(op, KindTooLarge,
				fmt.Errorf("record %s has %d characters, limit is %d", r.ID, n, l.MaxRecordChars))
		}
		if l.MaxMetadataKeys > 0 && len(r.Metadata) > l.MaxMetadataKeys {
			return NewError(op, KindPermanent,
				fmt.Errorf("record %s has %d metadata keys, limit is %d", r.ID, len(r.Metadata), l.MaxMetadataKeys))
		}
	}
	return nil
}
