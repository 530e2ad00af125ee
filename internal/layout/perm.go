// Package layout implements transpose pushing over ONNX graphs: moving or
// eliminating Transpose nodes so that each operator runs in the memory
// layout its execution provider prefers, with as few physical reorderings
// as possible.
//
// The package is organized as a dispatch table from qualified operator type
// to a handler pair: an input selector naming the layout-sensitive input
// slots, and a transform that performs the rewrite. Transforms are
// all-or-nothing: a false return guarantees the graph was not touched.
package layout

// ChannelLastToFirstPerm returns the permutation converting a channel-last
// tensor of the given rank to channel-first: [0, rank-1, 1, ..., rank-2].
// For rank 4 this is the NHWC -> NCHW permutation [0, 3, 1, 2].
func ChannelLastToFirstPerm(rank int) []int64 {
	perm := make([]int64, rank)
	if rank == 0 {
		return perm
	}
	perm[0] = 0
	if rank > 1 {
		perm[1] = int64(rank - 1)
	}
	for i := 2; i < rank; i++ {
		perm[i] = int64(i - 1)
	}
	return perm
}

// ChannelFirstToLastPerm returns the inverse of ChannelLastToFirstPerm.
func ChannelFirstToLastPerm(rank int) []int64 {
	return InvertPerm(ChannelLastToFirstPerm(rank))
}

// InvertPerm returns the inverse permutation: perm[inv[i]] = i for all i.
func InvertPerm(perm []int64) []int64 {
	inv := make([]int64, len(perm))
	for i, p := range perm {
		inv[p] = int64(i)
	}
	return inv
}

// EqualPerm reports exact structural equality of two permutations.
func EqualPerm(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// IsIdentityPerm reports whether perm maps every axis to itself.
func IsIdentityPerm(perm []int64) bool {
	for i, p := range perm {
		if p != int64(i) {
			return false
		}
	}
	return true
}

// ComposePerms returns the single permutation equivalent to transposing by
// first and then by second.
func ComposePerms(first, second []int64) []int64 {
	out := make([]int64, len(second))
	for i, s := range second {
		out[i] = first[s]
	}
	return out
}

// IsValidPerm reports whether perm is a bijection on [0, len(perm)).
func IsValidPerm(perm []int64) bool {
	seen := make([]bool, len(perm))
	for _, p := range perm {
		if p < 0 || p >= int64(len(perm)) || seen[p] {
			return false
		}
		seen[p] = true
	}
	return true
}
