package scorer

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/jonreiter/govader"
	"github.com/russross/blackfriday/v2"

	"SentimentPipeline/internal/domain"
	"SentimentPipeline/internal/ports"
)

var (
	markdownLink = regexp.MustCompile(`\[(.*?)\]\((https?:\/\/[^\s\)]+)\)`)
	bareURL      = regexp.MustCompile(`https?://\S+|www\.\S+`)
	htmlTag      = regexp.MustCompile(`<[^>]*>`)
)

// VaderScorer scores locally with the VADER lexicon. It stands in for the
// hosted endpoint in development and when no API key is configured.
type VaderScorer struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

var _ ports.Scorer = (*VaderScorer)(nil)

// NewVaderScorer loads the bundled lexicon.
func NewVaderScorer() *VaderScorer {
	return &VaderScorer{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

// Score maps the VADER compound score from [-1,1] onto [0,1].
func (v *VaderScorer) Score(ctx context.Context, batch domain.ScoringBatch) (domain.ScoringResult, error) {
	result := domain.ScoringResult{Documents: make([]domain.ScoredDocument, 0, batch.Len())}
	for _, doc := range batch.Documents {
		if err := ctx.Err(); err != nil {
			return domain.ScoringResult{}, fmt.Errorf("%w: %w", domain.ErrScorerTransport, err)
		}
		compound := v.analyzer.PolarityScores(PlainText(doc.Text)).Compound
		result.Documents = append(result.Documents, domain.ScoredDocument{
			ID:    doc.ID,
			Score: (compound + 1) / 2,
		})
	}
	return result, nil
}

// PlainText renders markdown and strips markup and links.
func PlainText(input string) string {
	rendered := blackfriday.Run([]byte(input), blackfriday.WithNoExtensions())
	text := htmlTag.ReplaceAllString(string(rendered), " ")
	text = markdownLink.ReplaceAllString(text, "$1")
	text = bareURL.ReplaceAllString(html.UnescapeString(text), "")
	return strings.Join(strings.Fields(text), " ")
}
