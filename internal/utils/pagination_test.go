package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	for in, want := range map[string]int{
		"":                        7,
		"3":                       3,
		"-2":                      -2,
		"007":                     7,
		"2x":                      7,
		" 4":                      7,
		"99999999999999999999999": 7,
		"pg:2":                    7,
	} {
		if got := AtoiDefault(in, 7); got != want {
			t.Errorf("AtoiDefault(%q) = %d; want %d", in, got, want)
		}
	}
}

func TestPage(t *testing.T) {
	cases := []struct {
		page, size          int
		wantP, wantS, wantO int
	}{
		{1, 5, 1, 5, 0},
		{4, 5, 4, 5, 15},
		{0, 5, 1, 5, 0},
		{-1, 0, 1, 10, 0},
		{3, -5, 3, 10, 20},
	}
	for _, tc := range cases {
		p, s, off := Page(tc.page, tc.size, 10)
		if p != tc.wantP || s != tc.wantS || off != tc.wantO {
			t.Errorf("Page(%d, %d) = (%d, %d, %d); want (%d, %d, %d)",
				tc.page, tc.size, p, s, off, tc.wantP, tc.wantS, tc.wantO)
		}
	}
}

func TestTotalPages(t *testing.T) {
	cases := []struct {
		total      int64
		size, want int
	}{
		{0, 5, 1},
		{5, 5, 1},
		{6, 5, 2},
		{12, 5, 3},
		{12, 0, 1},
	}
	for _, tc := range cases {
		if got := TotalPages(tc.total, tc.size); got != tc.want {
			t.Errorf("TotalPages(%d, %d) = %d; want %d", tc.total, tc.size, got, tc.want)
		}
	}
}
