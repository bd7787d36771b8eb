// Package bucketing maps visitors onto experiment variants. Everything here
// is pure: no storage access and no side effects.
package bucketing

import (
	"strconv"

	"github.com/gkobilansky/variant-goat/internal/fingerprint"
	"github.com/gkobilansky/variant-goat/internal/store"
)

const (
	// Buckets is the size of the bucket space; traffic splits are percentages.
	Buckets = 100

	prefixLen = 8 // hex characters, 4 bytes
)

// Bucket reduces the first 4 bytes of key to a value in [0, Buckets).
func Bucket(key fingerprint.VisitorKey) (int, error) {
	if len(key) < prefixLen {
		return 0, store.ConfigurationError("bucket", "visitor key %q too short", key)
	}
	n, err := strconv.ParseUint(string(key[:prefixLen]), 16, 32)
	if err != nil {
		return 0, store.ConfigurationError("bucket", "visitor key is not hex: %v", err)
	}
	return int(n % Buckets), nil
}

// Assign returns the variant a visitor sees. Buckets below exp.SplitA get
// variants[0] (A), the rest variants[1] (B). The same key, experiment and
// variants always yield the same variant.
func Assign(key fingerprint.VisitorKey, exp *store.Experiment, variants []store.Variant) (store.Variant, error) {
	if exp == nil {
		return store.Variant{}, store.ConfigurationError("assign", "no experiment")
	}
	if len(variants) != 2 {
		return store.Variant{}, store.ConfigurationError("assign",
			"experiment %d has %d variants, need exactly 2", exp.ID, len(variants))
	}
	if err := ValidateSplit(exp.SplitA); err != nil {
		return store.Variant{}, err
	}

	b, err := Bucket(key)
	if err != nil {
		return store.Variant{}, err
	}
	if b < exp.SplitA {
		return variants[0], nil
	}
	return variants[1], nil
}

// ValidateSplit rejects percentages outside 0-100.
func ValidateSplit(split int) error {
	if split < 0 || split > 100 {
		return store.ConfigurationError("split", "traffic split %d outside 0-100", split)
	}
	return nil
}
