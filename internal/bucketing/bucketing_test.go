package bucketing

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gkobilansky/variant-goat/internal/fingerprint"
	"github.com/gkobilansky/variant-goat/internal/store"
)

func twoVariants() []store.Variant {
	return []store.Variant{{Key: "A"}, {Key: "B"}}
}

// keyWithBucket builds a visitor key whose first 4 bytes reduce to b.
func keyWithBucket(b int) fingerprint.VisitorKey {
	return fingerprint.VisitorKey(fmt.Sprintf("%08x", b) + "00000000000000000000000000000000")
}

func TestBucket(t *testing.T) {
	b, err := Bucket("00000041ffff")
	require.NoError(t, err)
	assert.Equal(t, 65, b)

	b, err = Bucket("00000052")
	require.NoError(t, err)
	assert.Equal(t, 82, b)

	b, err = Bucket("ffffffff")
	require.NoError(t, err)
	assert.Equal(t, int(uint64(0xffffffff)%100), b)
}

func TestBucket_Malformed(t *testing.T) {
	for _, key := range []fingerprint.VisitorKey{"", "abc", "zzzzzzzz"} {
		_, err := Bucket(key)
		assert.True(t, store.IsConfiguration(err), "key %q: got %v", key, err)
	}
}

func TestAssign_SplitBoundary(t *testing.T) {
	exp := &store.Experiment{ID: 1, SplitA: 70}

	v, err := Assign("00000041"+"aa", exp, twoVariants())
	require.NoError(t, err)
	assert.Equal(t, "A", v.Key, "bucket 65 < 70")

	v, err = Assign("00000052"+"aa", exp, twoVariants())
	require.NoError(t, err)
	assert.Equal(t, "B", v.Key, "bucket 82 >= 70")

	v, err = Assign("00000046", exp, twoVariants())
	require.NoError(t, err)
	assert.Equal(t, "B", v.Key, "bucket 70 is not below a split of 70")
}

func TestAssign_Deterministic(t *testing.T) {
	exp := &store.Experiment{ID: 1, SplitA: 50}
	for i := 0; i < 1000; i++ {
		key := fingerprint.Hash("ua", strconv.Itoa(i))
		first, err := Assign(key, exp, twoVariants())
		require.NoError(t, err)
		for j := 0; j < 3; j++ {
			again, err := Assign(key, exp, twoVariants())
			require.NoError(t, err)
			require.Equal(t, first.Key, again.Key)
		}
	}
}

func TestAssign_SplitApproximation(t *testing.T) {
	const samples = 100000
	for _, split := range []int{10, 50, 70} {
		exp := &store.Experiment{ID: 1, SplitA: split}
		a := 0
		for i := 0; i < samples; i++ {
			v, err := Assign(fingerprint.Hash("Mozilla/5.0", "10.0."+strconv.Itoa(i)), exp, twoVariants())
			require.NoError(t, err)
			if v.Key == "A" {
				a++
			}
		}
		got := float64(a) / samples * 100
		assert.InDelta(t, float64(split), got, 1.0, "split %d", split)
	}
}

func TestAssign_ExtremeSplits(t *testing.T) {
	for i := 0; i < Buckets; i++ {
		v, err := Assign(keyWithBucket(i), &store.Experiment{SplitA: 0}, twoVariants())
		require.NoError(t, err)
		assert.Equal(t, "B", v.Key)

		v, err = Assign(keyWithBucket(i), &store.Experiment{SplitA: 100}, twoVariants())
		require.NoError(t, err)
		assert.Equal(t, "A", v.Key)
	}
}

func TestAssign_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name     string
		exp      *store.Experiment
		variants []store.Variant
	}{
		{"one variant", &store.Experiment{SplitA: 50}, []store.Variant{{Key: "A"}}},
		{"no variants", &store.Experiment{SplitA: 50}, nil},
		{"three variants", &store.Experiment{SplitA: 50}, []store.Variant{{Key: "A"}, {Key: "B"}, {Key: "C"}}},
		{"split above 100", &store.Experiment{SplitA: 101}, twoVariants()},
		{"negative split", &store.Experiment{SplitA: -1}, twoVariants()},
		{"nil experiment", nil, twoVariants()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assign(fingerprint.Hash("ua", "ip"), tt.exp, tt.variants)
			assert.True(t, store.IsConfiguration(err), "got %v", err)
		})
	}
}
