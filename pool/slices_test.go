package pool

import (
	"sync"
	"testing"
)

func TestStringSlicePool(t *testing.T) {
	s := AcquireStringSlice()
	if s == nil {
		t.Fatal("AcquireStringSlice returned nil")
	}

	*s = append(*s, "a", "b", "c")
	if len(*s) != 3 {
		t.Errorf("len = %d; want 3", len(*s))
	}

	ReleaseStringSlice(s)

	// Get another one - should be reset
	s2 := AcquireStringSlice()
	if len(*s2) != 0 {
		t.Errorf("len after acquire = %d; want 0 (should be reset)", len(*s2))
	}
	ReleaseStringSlice(s2)
}

func TestStringSlicePool_NilRelease(t *testing.T) {
	ReleaseStringSlice(nil) // Should not panic
}

func TestStringSlicePool_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	n := 100

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := AcquireStringSlice()
			*s = append(*s, "a", "b", "c")
			ReleaseStringSlice(s)
		}(i)
	}

	wg.Wait()
}

func BenchmarkStringSlicePool(b *testing.B) {
	for i := 0; i < b.N; i++ {
		s := AcquireStringSlice()
		*s = append(*s, "a", "b", "c")
		ReleaseStringSlice(s)
	}
}

func BenchmarkStringSlice_Direct(b *testing.B) {
	for i := 0; i < b.N; i++ {
		s := make([]string, 0, 16)
		s = append(s, "a", "b", "c")
		_ = s
	}
}

func BenchmarkSplitInto(b *testing.B) {
	const line = "PID|1||12345^^^HOSP^MR||DOE^JOHN||19700101|M"
	for i := 0; i < b.N; i++ {
		s := AcquireStringSlice()
		SplitInto(s, line, '|')
		ReleaseStringSlice(s)
	}
}

func TestSplitInto(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a|b|c", []string{"a", "b", "c"}},
		{"", []string{""}},
		{"a||", []string{"a", "", ""}},
		{"|", []string{"", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			s := AcquireStringSlice()
			defer ReleaseStringSlice(s)
			SplitInto(s, tt.in, '|')
			if len(*s) != len(tt.want) {
				t.Fatalf("SplitInto(%q) = %q; want %q", tt.in, *s, tt.want)
			}
			for i := range tt.want {
				if (*s)[i] != tt.want[i] {
					t.Errorf("part %d = %q; want %q", i, (*s)[i], tt.want[i])
				}
			}
		})
	}
}
