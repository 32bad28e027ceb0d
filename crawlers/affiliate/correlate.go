package affiliate

import (
	"fmt"
)

const creatorProfileListField = "creator_profile_list"

// FindCreator looks for handle in the result list of a search response.
func FindCreator(body map[string]any, handle string) (CreatorStub, bool) {
	list, _ := body[creatorProfileListField].([]any)
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if wrappedString(entry, "handle") != handle {
			continue
		}
		return CreatorStub{
			ID:          wrappedString(entry, "creator_oecuid"),
			Handle:      handle,
			DisplayName: wrappedString(entry, "nickname"),
		}, true
	}
	return CreatorStub{}, false
}

// wrappedString reads a field that the search API wraps as {"value": ...}.
func wrappedString(entry map[string]any, key string) string {
	v, ok := entry[key]
	if !ok || v == nil {
		return ""
	}
	if m, ok := v.(map[string]any); ok {
		v = m["value"]
	}
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
