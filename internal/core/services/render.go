package services

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/flcm/internal/core/domain"
)

// RenderBody produces the Markdown body stored under a document's header,
// so the files read well in a note application.
func RenderBody(doc domain.Document) string {
	var b strings.Builder
	switch d := doc.(type) {
	case *domain.ContentBrief:
		if len(d.Concepts) > 0 {
			fmt.Fprintf(&b, "# %s\n\n", strings.Join(d.Concepts, ", "))
		}
		if len(d.Insights) > 0 {
			b.WriteString("## Insights\n\n")
			for _, in := range d.Insights {
				fmt.Fprintf(&b, "- %s\n", in.Text)
			}
			b.WriteString("\n")
		}
		b.WriteString("## Sources\n\n")
		for _, s := range d.Sources {
			label := s.Title
			if label == "" {
				label = s.Location
			}
			fmt.Fprintf(&b, "- [%s](%s)\n", label, s.Location)
		}
	case *domain.KnowledgeSynthesis:
		fmt.Fprintf(&b, "# %s\n\nFrom [[%s]]\n", d.Concept, d.BriefID)
		for _, l := range d.Layers {
			fmt.Fprintf(&b, "\n## Level %d: %s\n", l.Level, l.Title)
			if l.Content != "" {
				fmt.Fprintf(&b, "\n%s\n", l.Content)
			}
		}
		if len(d.Questions) > 0 {
			b.WriteString("\n## Open questions\n\n")
			for _, q := range d.Questions {
				fmt.Fprintf(&b, "- %s\n", q)
			}
		}
	case *domain.ContentDraft:
		fmt.Fprintf(&b, "# %s\n\n%s\n", d.Title, d.Content)
	case *domain.PlatformAdaptation:
		b.WriteString(d.AdaptedContent)
		if len(d.Hashtags) > 0 {
			fmt.Fprintf(&b, "\n\n%s", strings.Join(d.Hashtags, " "))
		}
		b.WriteString("\n")
	}
	return b.String()
}
