// Package emoji counts emoji occurrences in message text.
package emoji

import "github.com/forPelevin/gomoji"

// Count returns the number of emoji in text, repeats included.
func Count(text string) int {
	if text == "" {
		return 0
	}
	return len(gomoji.CollectAll(text))
}
