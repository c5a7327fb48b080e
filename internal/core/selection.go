package core

import (
	"strconv"
	"strings"
)

// ParseSelection parses a free-form index expression: a comma-separated
// list of indices and inclusive ranges ("0,3,5-8"), or "all". Indices
// outside [0, n) and unparseable parts are silently dropped. Duplicates
// are removed, first occurrence wins.
func ParseSelection(expr string, n int) []int {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil
	}

	if strings.EqualFold(expr, "all") {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}

	var out []int
	seen := make(map[int]bool)
	add := func(i int) {
		if i >= 0 && i < n && !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}

	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err1 := strconv.Atoi(strings.TrimSpace(lo))
			end, err2 := strconv.Atoi(strings.TrimSpace(hi))
			if err1 != nil || err2 != nil {
				continue
			}
			for i := start; i <= end; i++ {
				add(i)
			}
			continue
		}
		i, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		add(i)
	}

	return out
}
