package util

import "strings"

// StripCodeFences removes a markdown ```json ... ``` wrapper that vision
// models sometimes put around their JSON payload.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
