package wire

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseWideInt coerces the representations a 64-bit identifier takes on
// its way through JSON and caller code into an int64.
func ParseWideInt(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows int64", ErrNotInteger, n)
		}
		return int64(n), nil
	case uint:
		return ParseWideInt(uint64(n))
	case uint32:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || n >= 1<<63 || n < -(1<<63) {
			return 0, fmt.Errorf("%w: %v", ErrNotInteger, n)
		}
		return int64(n), nil
	case float32:
		return ParseWideInt(float64(n))
	case json.Number:
		return ParseWideInt(string(n))
	case string:
		s := strings.TrimSpace(n)
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotInteger, n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrNotInteger, v)
	}
}
