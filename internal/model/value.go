package model

// Nullable fields throughout the model use nil for Unknown. A zero value is a real observation.

func Uint64(v uint64) *uint64 {
	return &v
}

func Int64(v int64) *int64 {
	return &v
}

func Float64(v float64) *float64 {
	return &v
}
