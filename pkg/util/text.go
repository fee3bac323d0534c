package util

import "strings"

// TidyText 去掉每行首尾空白并把连续空行合并为一行
func TidyText(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return content
	}
	lines := strings.Split(content, "\n")
	cleaned := make([]string, 0, len(lines))
	prevEmpty := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
			prevEmpty = false
		} else if !prevEmpty {
			cleaned = append(cleaned, "")
			prevEmpty = true
		}
	}
	return strings.Join(cleaned, "\n")
}
