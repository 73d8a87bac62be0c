package repository

import "fmt"

// toInt64 and toFloat64 normalise the handful of numeric representations
// lib/pq hands back for COUNT/SUM/AVG/MIN/MAX results (int64 for COUNT,
// float64 for a DOUBLE PRECISION cast).
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("repository: cannot convert %T to int64", v)
	}
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("repository: cannot convert %T to float64", v)
	}
}
