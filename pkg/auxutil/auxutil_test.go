package auxutil

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExpandIDSet(t *testing.T) {
	cases := []struct {
		in   string
		want []uint32
	}{
		{"", []uint32{}},
		{"0", []uint32{0}},
		{"0-3", []uint32{0, 1, 2, 3}},
		{"0-3,5,7-9", []uint32{0, 1, 2, 3, 5, 7, 8, 9}},
		{"5,1,3", []uint32{1, 3, 5}},
		{"2-2,2", []uint32{2}},
	}
	for _, c := range cases {
		got, err := ExpandIDSet(c.in)
		require.NoError(t, err, c.in)
		require.Equal(t, c.want, got, c.in)
	}
}

func TestExpandIDSetErrors(t *testing.T) {
	for _, in := range []string{"a-3", "3-1", ",", "1,,2"} {
		_, err := ExpandIDSet(in)
		require.Error(t, err, in)
	}
}

func TestCompressIDSetRoundTrips(t *testing.T) {
	cases := [][]uint32{
		{0, 1, 2, 3, 5, 7, 8, 9},
		{5},
		{},
		{9, 8, 7, 0, 1, 2, 3, 5, 5},
	}
	for _, ranks := range cases {
		compressed := CompressIDSet(ranks)
		back, err := ExpandIDSet(compressed)
		require.NoError(t, err, compressed)
		require.Equal(t, dedupeSorted(ranks), back, compressed)
	}
}

func dedupeSorted(ranks []uint32) []uint32 {
	seen := make(map[uint32]bool)
	out := []uint32{}
	for _, r := range ranks {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestExpandHostlist(t *testing.T) {
	got, err := ExpandHostlist("node[1-3,5]")
	require.NoError(t, err)
	require.Equal(t, []string{"node1", "node2", "node3", "node5"}, got)

	got, err = ExpandHostlist("node[01-03]")
	require.NoError(t, err)
	require.Equal(t, []string{"node01", "node02", "node03"}, got)

	got, err = ExpandHostlist("node7")
	require.NoError(t, err)
	require.Equal(t, []string{"node7"}, got)

	got, err = ExpandHostlist("a[1-2],b[3-4]")
	require.NoError(t, err)
	require.Equal(t, []string{"a1", "a2", "b3", "b4"}, got)
}

func TestExpandHostlistUnterminated(t *testing.T) {
	_, err := ExpandHostlist("node[1-3")
	require.Error(t, err)
}

func TestCompressHostlist(t *testing.T) {
	got := CompressHostlist([]string{"node1", "node2", "node3", "node5"})
	require.Equal(t, "node[1-3,5]", got)

	got = CompressHostlist([]string{"node01", "node02", "node03"})
	require.Equal(t, "node[01-03]", got)

	got = CompressHostlist([]string{"gateway"})
	require.Equal(t, "gateway", got)
}

func TestParseFSD(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"5s", 5 * time.Second},
		{"2m", 2 * time.Minute},
		{"500ms", 500 * time.Millisecond},
		{"1h", time.Hour},
		{"1d", 24 * time.Hour},
		{"30", 30 * time.Second},
		{"0.5s", 500 * time.Millisecond},
	}
	for _, c := range cases {
		got, err := ParseFSD(c.in)
		require.NoError(t, err, c.in)
		require.Equal(t, c.want, got, c.in)
	}
}

func TestParseFSDErrors(t *testing.T) {
	for _, in := range []string{"", "s", "-5s", "5x"} {
		_, err := ParseFSD(in)
		require.Error(t, err, in)
	}
}

func TestFormatFSDRoundTrips(t *testing.T) {
	for _, d := range []time.Duration{0, 5 * time.Second, 2 * time.Minute, time.Hour, 24 * time.Hour, 500 * time.Millisecond} {
		s := FormatFSD(d)
		back, err := ParseFSD(s)
		require.NoError(t, err, s)
		require.Equal(t, d, back, s)
	}
}
