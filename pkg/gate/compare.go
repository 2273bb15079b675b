package gate

import (
	"fmt"
	"reflect"
)

// compare applies a field-condition operator. Numeric comparisons normalize
// both sides to float64 since JSON decoding always yields float64.
func compare(operator string, actual, expected any) (bool, error) {
	switch operator {
	case "eq":
		return equal(actual, expected), nil
	case "ne":
		return !equal(actual, expected), nil
	case "gt":
		left, right, err := numericPair(actual, expected)
		if err != nil {
			return false, err
		}

		return left > right, nil
	case "lt":
		left, right, err := numericPair(actual, expected)
		if err != nil {
			return false, err
		}

		return left < right, nil
	case "in":
		list, ok := expected.([]any)
		if !ok {
			return false, fmt.Errorf("operator in requires a list, got %T", expected)
		}

		for _, item := range list {
			if equal(actual, item) {
				return true, nil
			}
		}

		return false, nil
	default:
		return false, fmt.Errorf("unsupported operator %q", operator)
	}
}

func equal(a, b any) bool {
	if af, aok := asNumber(a); aok {
		if bf, bok := asNumber(b); bok {
			return af == bf
		}
	}

	return reflect.DeepEqual(a, b)
}

func numericPair(a, b any) (float64, float64, error) {
	af, ok := asNumber(a)
	if !ok {
		return 0, 0, fmt.Errorf("value %v (%T) is not numeric", a, a)
	}

	bf, ok := asNumber(b)
	if !ok {
		return 0, 0, fmt.Errorf("value %v (%T) is not numeric", b, b)
	}

	return af, bf, nil
}

func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
