package common

// RoundUpDiv returns ceil(n / d).
func RoundUpDiv(n, d int64) int64 {
	return (n + d - 1) / d
}

func IsPowerOfTwo(n int64) bool {
	return n > 0 && n&(n-1) == 0
}
