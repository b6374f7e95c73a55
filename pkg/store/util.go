package store

// ChunkRange invokes fn over [start,end) windows of at most chunkSize
// covering n items, stopping at the first error.
func ChunkRange(n, chunkSize int, fn func(start, end int) error) error {
	if chunkSize <= 0 {
		chunkSize = n
	}
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}
