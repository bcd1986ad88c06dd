package vocab

// PadPre returns a window of exactly n codes. Shorter input is left-padded
// with Null; longer input keeps only its trailing n codes, the most recent
// context.
func PadPre(codes []int, n int) []int {
	out := make([]int, n)
	if len(codes) >= n {
		copy(out, codes[len(codes)-n:])
		return out
	}
	copy(out[n-len(codes):], codes)
	return out
}
