// Package pagerange parses page selection expressions such as "1-5, 10, 15-20".
//
// The grammar is a comma separated list of tokens. A token is either a single
// page number or a "start-end" pair. Single pages outside [1, maxPage] are
// dropped, ranges are clamped to [1, maxPage] and tokens that are not numeric
// contribute nothing. Parsing never fails.
package pagerange

import (
	"sort"
	"strconv"
	"strings"
)

// Parse returns the pages selected by expr, deduplicated and sorted ascending.
func Parse(expr string, maxPage int) []int {
	if maxPage < 1 {
		return []int{}
	}

	set := make(map[int]struct{})
	for _, token := range strings.Split(expr, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		if strings.Contains(token, "-") {
			start, end, ok := parseBounds(token)
			if !ok {
				continue
			}
			start = max(1, start)
			end = min(maxPage, end)
			for page := start; page <= end; page++ {
				set[page] = struct{}{}
			}
			continue
		}

		page, err := strconv.Atoi(token)
		if err != nil || page < 1 || page > maxPage {
			continue
		}
		set[page] = struct{}{}
	}

	pages := make([]int, 0, len(set))
	for page := range set {
		pages = append(pages, page)
	}
	sort.Ints(pages)
	return pages
}

// Format renders pages back into the compact range grammar, e.g. [1 2 3 7] -> "1-3,7".
// pages must be sorted ascending without duplicates.
func Format(pages []int) string {
	var b strings.Builder
	for i := 0; i < len(pages); {
		j := i
		for j+1 < len(pages) && pages[j+1] == pages[j]+1 {
			j++
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(pages[i]))
		if j > i {
			b.WriteByte('-')
			b.WriteString(strconv.Itoa(pages[j]))
		}
		i = j + 1
	}
	return b.String()
}

func parseBounds(token string) (int, int, bool) {
	parts := strings.Split(token, "-")
	if len(parts) != 2 {
		return 0, 0, false
	}
	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}
	end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, false
	}
	return start, end, true
}
