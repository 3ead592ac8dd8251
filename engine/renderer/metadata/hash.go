package metadata

// HashState combines values into a running hash the same way
// boost::hash_combine does. The result depends on the order of Add calls.
type HashState uint64

func (h *HashState) Add(v uint64) {
	*h ^= HashState(v + 0x9e3779b9 + (uint64(*h) << 6) + (uint64(*h) >> 2))
}

func (h HashState) Sum() uint64 {
	return uint64(h)
}
