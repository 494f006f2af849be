package countsort

import (
	"slices"
	"testing"
)

func TestLevelLengths(t *testing.T) {
	tests := []struct {
		size, width uint32
		want        []uint32
	}{
		{1, 2, []uint32{1}},
		{128, 128, []uint32{128}},
		{129, 128, []uint32{129, 2}},
		{8192, 128, []uint32{8192, 64}},
		{4096, 32, []uint32{4096, 128, 4}},
		{1000, 10, []uint32{1000, 100, 10}},
		{15, 2, []uint32{15, 8, 4, 2}},
		{65536, 256, []uint32{65536, 256}},
	}
	for _, tt := range tests {
		got := LevelLengths(tt.size, tt.width)
		if !slices.Equal(got, tt.want) {
			t.Errorf("LevelLengths(%d, %d) = %v, want %v", tt.size, tt.width, got, tt.want)
		}
		if n := LevelCount(tt.size, tt.width); n != len(tt.want) {
			t.Errorf("LevelCount(%d, %d) = %d, want %d", tt.size, tt.width, n, len(tt.want))
		}
	}
}

func TestWorkgroupCount(t *testing.T) {
	tests := []struct{ n, w, want uint32 }{
		{0, 64, 0},
		{1, 64, 1},
		{64, 64, 1},
		{65, 64, 2},
		{8192, 128, 64},
	}
	for _, tt := range tests {
		if got := WorkgroupCount(tt.n, tt.w); got != tt.want {
			t.Errorf("WorkgroupCount(%d, %d) = %d, want %d", tt.n, tt.w, got, tt.want)
		}
	}
}
