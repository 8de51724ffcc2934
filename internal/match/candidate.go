package match

import (
	"fmt"
	"strconv"
	"strings"
)

// CandidateFromMap parses a scraped listing row. Scrapers emit loosely typed
// maps; ages in particular arrive as strings, floats, or ints depending on
// the source page.
func CandidateFromMap(m map[string]any) Candidate {
	c := Candidate{
		Name:  asString(m["name"]),
		City:  asString(m["city"]),
		State: asString(m["state"]),
		Phone: asString(m["phone"]),
		URL:   asString(m["url"]),
	}
	if c.URL == "" {
		c.URL = asString(m["profile_url"])
	}
	if loc, ok := m["location"].(map[string]any); ok {
		if c.City == "" {
			c.City = asString(loc["city"])
		}
		if c.State == "" {
			c.State = asString(loc["state"])
		}
	}
	if age, ok := asInt(m["age"]); ok {
		c.Age = &age
	}
	if rels, ok := m["relatives"].([]any); ok {
		for _, r := range rels {
			if name := asString(r); name != "" {
				c.Relatives = append(c.Relatives, name)
			}
		}
	}
	return c
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
