package alert

import "strings"

// StaticWhitelist is a fixed recipient list sourced from config.
type StaticWhitelist struct {
	ids []string
}

// NewStaticWhitelist drops blank entries and duplicates but keeps the
// configured order.
func NewStaticWhitelist(ids []string) *StaticWhitelist {
	seen := make(map[string]struct{}, len(ids))
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		kept = append(kept, id)
	}
	return &StaticWhitelist{ids: kept}
}

func (w *StaticWhitelist) Whitelist() []string {
	out := make([]string, len(w.ids))
	copy(out, w.ids)
	return out
}
