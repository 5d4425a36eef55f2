package pool

import (
	"strings"
	"sync"
)

// stringSlicePool holds the []string buffers used to split delimited text.
var stringSlicePool = sync.Pool{
	New: func() any {
		s := make([]string, 0, 16)
		return &s
	},
}

// AcquireStringSlice gets a string slice from the pool.
func AcquireStringSlice() *[]string {
	s := stringSlicePool.Get().(*[]string)
	*s = (*s)[:0]
	return s
}

// ReleaseStringSlice returns a string slice to the pool.
func ReleaseStringSlice(s *[]string) {
	if s == nil {
		return
	}
	// Don't return oversized slices
	if cap(*s) <= 256 {
		stringSlicePool.Put(s)
	}
}

// SplitInto appends the parts of s separated by sep to dst, like
// strings.Split but without allocating a new slice.
func SplitInto(dst *[]string, s string, sep byte) {
	for {
		i := strings.IndexByte(s, sep)
		if i < 0 {
			*dst = append(*dst, s)
			return
		}
		*dst = append(*dst, s[:i])
		s = s[i+1:]
	}
}
