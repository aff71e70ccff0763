package notification

import (
	"fmt"
	"strings"
	"time"

	"NewsDigest/internal/domain"
)

const footerLayout = "02.01.2006, 15:04:05"

// FormatDigest renders results as one plain-text message: a header with the
// count, one block per result and a timestamped footer.
func FormatDigest(results []domain.DigestResult, at time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📰 Обработано новостей: %d\n\n", len(results))

	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "📄 Статья %d:\n", i+1)
		fmt.Fprintf(&sb, "🔗 Источник: %s\n", r.Source)
		fmt.Fprintf(&sb, "📌 Заголовок: %s\n", r.Title)
		fmt.Fprintf(&sb, "🌐 URL: %s\n", r.URL)
		fmt.Fprintf(&sb, "📝 Краткое содержание: %s\n\n", r.Summary)
		sb.WriteString("😄 Мемы и шутки:\n")
		for _, meme := range r.Memes {
			fmt.Fprintf(&sb, "  • %s\n", meme)
		}
		for _, joke := range r.Jokes {
			fmt.Fprintf(&sb, "  • %s\n", joke)
		}
		sb.WriteString("\n---")
	}

	fmt.Fprintf(&sb, "\n⏰ Обработано: %s", at.Format(footerLayout))
	return sb.String()
}
