package posts

import "regexp"

var mentionPattern = regexp.MustCompile(`@[a-zA-Z0-9-_]+`)

// ExtractMentions returns the distinct usernames mentioned in the text,
// in first-seen order and without the leading @.
func ExtractMentions(text string) []string {
	matches := mentionPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	usernames := make([]string, 0, len(matches))
	for _, match := range matches {
		username := match[1:]
		if _, ok := seen[username]; ok {
			continue
		}
		seen[username] = struct{}{}
		usernames = append(usernames, username)
	}
	return usernames
}
