package console

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatBody joins args with single spaces. Strings, numbers, bools, errors
// and fmt.Stringers are converted to their text; every other value,
// including nil, is JSON encoded, falling back to %v when encoding fails
// or panics.
func FormatBody(args ...any) string {
	var b strings.Builder
	for i, arg := range args {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(formatArg(arg))
	}
	return b.String()
}

func formatArg(arg any) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = fmt.Sprint(arg)
		}
	}()

	switch v := arg.(type) {
	case string:
		return v
	case error, fmt.Stringer:
		// fmt prints a nil receiver as <nil> instead of panicking.
		return fmt.Sprint(v)
	case bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, uintptr,
		float32, float64:
		return fmt.Sprint(v)
	}
	data, err := json.Marshal(arg)
	if err != nil {
		return fmt.Sprintf("%v", arg)
	}
	return string(data)
}
