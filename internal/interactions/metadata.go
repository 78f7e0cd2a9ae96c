package interactions

import (
	"strings"
)

const maxKeyLength = 32

// NormalizeKey cleans up a tag or category: drops a leading '#', trims,
// lowercases and caps the length. Empty input yields "".
func NormalizeKey(key string) string {
	key = strings.TrimPrefix(strings.TrimSpace(key), "#")
	key = strings.ToLower(strings.TrimSpace(key))
	if len(key) > maxKeyLength {
		key = key[:maxKeyLength]
	}
	return key
}

// Category extracts the normalized category from interaction metadata.
func Category(meta map[string]interface{}) string {
	if meta == nil {
		return ""
	}
	s, _ := meta["category"].(string)
	return NormalizeKey(s)
}

// Topics extracts normalized topic keys from the "tags" and "topics"
// metadata entries. Each may be a JSON array or a legacy space or comma
// separated string. Order is preserved and duplicates are dropped.
func Topics(meta map[string]interface{}) []string {
	if meta == nil {
		return nil
	}

	seen := make(map[string]struct{})
	var topics []string
	add := func(raw string) {
		key := NormalizeKey(raw)
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		topics = append(topics, key)
	}

	for _, field := range []string{"tags", "topics"} {
		switch v := meta[field].(type) {
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		case []string:
			for _, s := range v {
				add(s)
			}
		case string:
			for _, s := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
				add(s)
			}
		}
	}

	return topics
}

// PostMetadata builds the metadata attached to post interactions.
func PostMetadata(category string, tags []string) map[string]interface{} {
	meta := map[string]interface{}{}
	if category != "" {
		meta["category"] = category
	}
	if len(tags) > 0 {
		list := make([]interface{}, len(tags))
		for i, t := range tags {
			list[i] = t
		}
		meta["tags"] = list
	}
	return meta
}
