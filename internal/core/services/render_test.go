package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/flcm/internal/core/domain"
)

func TestRenderBody(t *testing.T) {
	tests := []struct {
		name string
		doc  domain.Document
		want []string
	}{
		{
			name: "brief",
			doc:  validBrief("b1"),
			want: []string{"# delivery", "## Insights", "- Small teams ship faster", "- [Post](https://example.com/post)"},
		},
		{
			name: "synthesis links its brief",
			doc:  validSynthesis("s1", "b1"),
			want: []string{"# delivery", "From [[b1]]", "## Level 1: What", "## Level 3: Why"},
		},
		{
			name: "draft",
			doc:  validDraft("d1", "s1"),
			want: []string{"# Ship small", "talk less and build more"},
		},
		{
			name: "adaptation",
			doc:  validAdaptation("a1", "d1", domain.PlatformTwitter),
			want: []string{"Small teams ship faster.", "#shipping"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := RenderBody(tt.doc)
			for _, w := range tt.want {
				assert.Contains(t, body, w)
			}
		})
	}
}

func TestRenderBody_SourceWithoutTitle(t *testing.T) {
	b := validBrief("b1")
	b.Sources[0].Title = ""
	assert.Contains(t, RenderBody(b), "- [https://example.com/post](https://example.com/post)")
}
