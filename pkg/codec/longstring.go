package codec

import (
	"fmt"
	"strconv"
	"strings"
)

const longStringMark = "#~#"

// LongStringCode returns the inline placeholder of a string stored out of line.
func LongStringCode(objID int64, slot int) string {
	return fmt.Sprintf("%s%d%s%d%s", longStringMark, objID, longStringMark, slot, longStringMark)
}

// ParseLongStringCode extracts the slot from a placeholder written for objID.
// It returns false for ordinary strings and for placeholders of other objects.
func ParseLongStringCode(objID int64, text string) (int, bool) {
	id, slot, ok := parseLongStringCode(text)
	if !ok || id != objID {
		return 0, false
	}
	return slot, true
}

// IsLongStringCode reports whether text has the shape of a placeholder of any
// object. Writers move such values out of line so that reading them back
// cannot mistake them for placeholders.
func IsLongStringCode(text string) bool {
	_, _, ok := parseLongStringCode(text)
	return ok
}

func parseLongStringCode(text string) (int64, int, bool) {
	if !strings.HasPrefix(text, longStringMark) || !strings.HasSuffix(text, longStringMark) {
		return 0, 0, false
	}
	parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(text, longStringMark), longStringMark), longStringMark)
	if len(parts) != 2 {
		return 0, 0, false
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	slot, err := strconv.Atoi(parts[1])
	if err != nil || slot < 0 {
		return 0, 0, false
	}
	return id, slot, true
}
