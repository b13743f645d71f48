package version

import (
	"sort"
	"strconv"
	"strings"
)

// ParseID splits v{n}_{stamp} into its sequence number and stamp.
func ParseID(id string) (seq int, stamp string, ok bool) {
	if !strings.HasPrefix(id, "v") {
		return 0, "", false
	}
	num, stamp, found := strings.Cut(id[1:], "_")
	if !found {
		return 0, "", false
	}
	seq, err := strconv.Atoi(num)
	if err != nil || seq < 0 {
		return 0, "", false
	}
	return seq, stamp, true
}

// CompareIDs orders version ids by sequence number, then stamp. Ids that do
// not parse sort before every well-formed id, among themselves by string.
func CompareIDs(a, b string) int {
	seqA, stampA, okA := ParseID(a)
	seqB, stampB, okB := ParseID(b)
	switch {
	case okA && !okB:
		return 1
	case !okA && okB:
		return -1
	case !okA && !okB:
		return strings.Compare(a, b)
	case seqA != seqB:
		if seqA < seqB {
			return -1
		}
		return 1
	case stampA != stampB:
		return strings.Compare(stampA, stampB)
	}
	return strings.Compare(a, b)
}

// SortIDs sorts ids oldest first.
func SortIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool { return CompareIDs(ids[i], ids[j]) < 0 })
}
