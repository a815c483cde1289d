package mapping

import (
	"strconv"
	"strings"
)

// Sanitize reduces an open-ended attribute map to a MappedRecord: keys
// beginning with "_" (API envelope) are dropped, and nested link objects of
// the form {"href": ".../types/5"} collapse to "<key>_id": 5. Scalar values
// pass through unchanged. The input map is never mutated.
func Sanitize(source map[string]any) MappedRecord {
	out := make(MappedRecord, len(source))
	for key, value := range source {
		if strings.HasPrefix(key, "_") {
			continue
		}
		if link, ok := value.(map[string]any); ok {
			href, hasHref := link["href"].(string)
			if !hasHref {
				// Nested non-link objects carry no scalar meaning; drop them.
				continue
			}
			if id, ok := idFromHref(href); ok {
				out[strings.TrimSuffix(key, "_id")+"_id"] = id
			}
			continue
		}
		if list, ok := value.([]any); ok {
			out[key] = sanitizeList(list)
			continue
		}
		out[key] = value
	}
	return out
}

func sanitizeList(list []any) []any {
	out := make([]any, 0, len(list))
	for _, item := range list {
		if link, ok := item.(map[string]any); ok {
			if href, hasHref := link["href"].(string); hasHref {
				if id, ok := idFromHref(href); ok {
					out = append(out, id)
				}
			}
			continue
		}
		out = append(out, item)
	}
	return out
}

// idFromHref extracts the trailing numeric path segment of a HAL href.
func idFromHref(href string) (int, bool) {
	href = strings.TrimRight(href, "/")
	idx := strings.LastIndexByte(href, '/')
	if idx < 0 {
		return 0, false
	}
	id, err := strconv.Atoi(href[idx+1:])
	if err != nil {
		return 0, false
	}
	return id, true
}
