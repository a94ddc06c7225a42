package region

// Selection is the filter state applied to a collection: a category and an
// optional single region code.
type Selection struct {
	Category Category
	Code     int
	HasCode  bool
}

// Filter returns the regions matching the selection, preserving input order.
// The category is applied before the code. A nil or empty input yields an
// empty, non-nil result.
func Filter(regions Collection, sel Selection) Collection {
	out := make(Collection, 0, len(regions))
	for _, r := range regions {
		if !sel.matchesCategory(r) {
			continue
		}
		if sel.HasCode && r.Code != sel.Code {
			continue
		}
		out = append(out, r)
		if sel.HasCode {
			break
		}
	}
	return out
}

func (s Selection) matchesCategory(r Region) bool {
	switch s.Category {
	case "", CategoryAll:
		return true
	default:
		return r.Category == s.Category
	}
}
