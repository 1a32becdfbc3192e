package domain

import "unicode"

// Mentions извлекает @name-токены из текста сообщения. Возвращает имена в
// порядке появления, без дублей. Резолв имён в user id — забота сервиса;
// нераспознанные имена молча отбрасываются.
func Mentions(content string) []string {
	runes := []rune(content)

	var names []string
	seen := make(map[string]struct{})

	for i := 0; i < len(runes); i++ {
		if runes[i] != '@' {
			continue
		}
		if i > 0 && isMentionChar(runes[i-1]) {
			// @ внутри слова (email и т.п.) — не упоминание
			continue
		}
		j := i + 1
		for j < len(runes) && isMentionChar(runes[j]) {
			j++
		}
		name := string(runes[i+1 : j])
		i = j - 1
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

func isMentionChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-'
}
