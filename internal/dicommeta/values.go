package dicommeta

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
)

// Private Siemens tags come back from the parser in whatever representation
// the transfer syntax allowed, so both coercions accept strings, every integer
// width, and raw byte payloads.

func coerceString(value dicom.Value) (string, error) {
	switch v := value.GetValue().(type) {
	case []string:
		if len(v) == 0 {
			return "", fmt.Errorf("empty string value")
		}
		return strings.TrimSpace(v[0]), nil
	case []byte:
		return strings.TrimSpace(string(bytes.TrimRight(v, "\x00"))), nil
	case []int:
		if len(v) == 0 {
			return "", fmt.Errorf("empty int value")
		}
		return strconv.Itoa(v[0]), nil
	default:
		return "", fmt.Errorf("unsupported value representation %T", v)
	}
}

func coerceInt(value dicom.Value) (int, error) {
	switch v := value.GetValue().(type) {
	case []int:
		if len(v) == 0 {
			return 0, fmt.Errorf("empty int value")
		}
		return v[0], nil
	case []string:
		if len(v) == 0 {
			return 0, fmt.Errorf("empty string value")
		}
		n, err := strconv.Atoi(strings.TrimSpace(v[0]))
		if err != nil {
			return 0, fmt.Errorf("value %q is not an integer: %w", v[0], err)
		}
		return n, nil
	case []float64:
		if len(v) == 0 {
			return 0, fmt.Errorf("empty float value")
		}
		return int(v[0]), nil
	case []byte:
		s := strings.TrimSpace(string(bytes.TrimRight(v, "\x00")))
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("byte value %q is not an integer: %w", s, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported value representation %T", v)
	}
}
