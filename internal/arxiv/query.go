package arxiv

import (
	"fmt"
	"strings"
)

// BaseQuery restricts results to the machine-learning categories.
const BaseQuery = "(cat:cs.LG OR cat:cs.AI OR cat:stat.ML)"

// BuildQuery combines BaseQuery with comma-separated keywords. Each keyword
// must appear as a phrase in the title or abstract; all keywords must match.
func BuildQuery(keywords string) string {
	var parts []string
	for _, k := range strings.Split(keywords, ",") {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf(`(ti:"%s" OR abs:"%s")`, k, k))
	}
	if len(parts) == 0 {
		return BaseQuery
	}
	return BaseQuery + " AND (" + strings.Join(parts, " AND ") + ")"
}
