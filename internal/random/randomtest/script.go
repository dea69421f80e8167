// Package randomtest provides scripted random sources for tests.
package randomtest

// Script is a random.Source that replays fixed draws to force exact
// outcomes in tests. When a list runs out it repeats its last value; an empty list
// yields zero.
type Script struct {
	Ints   []int
	Floats []float64
}

func (s *Script) IntN(n int) int {
	v := 0
	if len(s.Ints) > 0 {
		v = s.Ints[0]
		if len(s.Ints) > 1 {
			s.Ints = s.Ints[1:]
		}
	}
	if v >= n {
		v = n - 1
	}
	return v
}

func (s *Script) Float64() float64 {
	if len(s.Floats) == 0 {
		return 0
	}
	v := s.Floats[0]
	if len(s.Floats) > 1 {
		s.Floats = s.Floats[1:]
	}
	return v
}
