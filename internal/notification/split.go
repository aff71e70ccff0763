package notification

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// partHeaderReserve leaves room for "[Часть 999/999]\n".
var partHeaderReserve = utf8.RuneCountInString(partHeader(999, 999))

func partHeader(i, n int) string {
	return fmt.Sprintf("[Часть %d/%d]\n", i, n)
}

// SplitMessage breaks message into parts of at most limit characters. Short
// messages are returned whole. Long ones are split on line boundaries, a line
// longer than the limit is cut into fixed-size chunks, and every part gets a
// "[Часть i/n]" header unless the limit is too small to fit one. limit <= 0
// disables splitting.
func SplitMessage(message string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(message) <= limit {
		return []string{message}
	}

	headers := limit > partHeaderReserve
	budget := limit
	if headers {
		budget -= partHeaderReserve
	}

	var (
		parts   []string
		current strings.Builder
		size    int
	)
	flush := func() {
		if text := strings.TrimRight(current.String(), "\n"); text != "" {
			parts = append(parts, text)
		}
		current.Reset()
		size = 0
	}

	for _, line := range strings.Split(message, "\n") {
		lineSize := utf8.RuneCountInString(line)
		if size+lineSize+1 > budget {
			flush()
			if lineSize > budget {
				parts = append(parts, chunkRunes(line, budget)...)
				continue
			}
		}
		current.WriteString(line)
		current.WriteByte('\n')
		size += lineSize + 1
	}
	flush()

	if len(parts) <= 1 || !headers {
		return parts
	}
	for i := range parts {
		parts[i] = partHeader(i+1, len(parts)) + parts[i]
	}
	return parts
}

func chunkRunes(s string, size int) []string {
	runes := []rune(s)
	chunks := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
