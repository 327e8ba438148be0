package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

const entryNumberPrefix = "JE-"

// FormatEntryNumber renders a sequence value as JE-000042.
func FormatEntryNumber(seq int64) string {
	return fmt.Sprintf("%s%06d", entryNumberPrefix, seq)
}

// ParseEntryNumber returns the sequence encoded in an entry number.
func ParseEntryNumber(number string) (int64, error) {
	if !strings.HasPrefix(number, entryNumberPrefix) {
		return 0, fmt.Errorf("%w: entry number %q", ErrValidation, number)
	}
	seq, err := strconv.ParseInt(strings.TrimPrefix(number, entryNumberPrefix), 10, 64)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("%w: entry number %q", ErrValidation, number)
	}
	return seq, nil
}
