package sliceutil

// Map applies f to every element of v, keeping the order.
func Map[From any, To any](v []From, f func(From) To) []To {
	out := make([]To, len(v))
	for idx, elem := range v {
		out[idx] = f(elem)
	}
	return out
}
