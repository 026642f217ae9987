package pulse

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/gentimes/pulse/models"
)

// Content is the text surface of an article the analyzer grades.
type Content struct {
	Title          string
	SEOTitle       string
	Excerpt        string
	SEODescription string
	Body           string
	FocusKeyphrase string
}

// ContentOf extracts the analyzable fields from an article.
func ContentOf(a *models.Article) Content {
	return Content{
		Title:          a.Title,
		SEOTitle:       a.SEOTitle,
		Excerpt:        a.Excerpt,
		SEODescription: a.SEODescription,
		Body:           a.Body,
		FocusKeyphrase: a.FocusKeyphrase,
	}
}

// Raw point budgets per bucket; each bucket is scaled to 0-100.
const (
	seoPointsMax         = 40
	readabilityPointsMax = 30
	aiPointsMax          = 30
)

var (
	sentenceSplit  = regexp.MustCompile(`[.!?]+`)
	paragraphSplit = regexp.MustCompile(`\n\n+`)
	markdownH2     = regexp.MustCompile(`##\s`)
	markdownBullet = regexp.MustCompile(`(?m)^[-*]\s`)
)

// Analyze grades a piece of content for SEO, readability and
// AI-extractability. Pure and deterministic: identical input yields
// identical scores and an identically ordered check list.
func Analyze(c Content) models.Analysis {
	var checks []models.SEOCheck
	var seoPoints, readabilityPoints, aiPoints int

	title := c.SEOTitle
	if title == "" {
		title = c.Title
	}
	description := c.SEODescription
	if description == "" {
		description = c.Excerpt
	}
	keyphrase := strings.ToLower(c.FocusKeyphrase)
	body := c.Body

	add := func(id string, category models.CheckCategory, status models.CheckStatus, message string) {
		checks = append(checks, models.SEOCheck{ID: id, Category: category, Status: status, Message: message})
	}

	// SEO bucket.

	titleLen := utf8.RuneCountInString(title)
	switch {
	case titleLen >= 50 && titleLen <= 60:
		seoPoints += 10
		add("title-length", models.CheckSEO, models.StatusGood, fmt.Sprintf("Title length is optimal (%d chars)", titleLen))
	case titleLen >= 30 && titleLen <= 70:
		seoPoints += 5
		add("title-length", models.CheckSEO, models.StatusWarning, fmt.Sprintf("Title length could be improved (%d chars, ideal: 50-60)", titleLen))
	case titleLen < 30:
		add("title-length", models.CheckSEO, models.StatusBad, fmt.Sprintf("Title is too short (%d chars)", titleLen))
	default:
		add("title-length", models.CheckSEO, models.StatusBad, fmt.Sprintf("Title is too long (%d chars)", titleLen))
	}

	descLen := utf8.RuneCountInString(description)
	switch {
	case descLen >= 150 && descLen <= 160:
		seoPoints += 10
		add("meta-length", models.CheckSEO, models.StatusGood, fmt.Sprintf("Meta description is optimal (%d chars)", descLen))
	case descLen >= 120 && descLen <= 200:
		seoPoints += 5
		add("meta-length", models.CheckSEO, models.StatusWarning, fmt.Sprintf("Meta description could be improved (%d chars)", descLen))
	case descLen < 120:
		add("meta-length", models.CheckSEO, models.StatusBad, fmt.Sprintf("Meta description is too short (%d chars)", descLen))
	default:
		add("meta-length", models.CheckSEO, models.StatusBad, fmt.Sprintf("Meta description is too long (%d chars)", descLen))
	}

	if keyphrase != "" {
		if strings.Contains(strings.ToLower(title), keyphrase) {
			seoPoints += 10
			add("keyphrase-title", models.CheckSEO, models.StatusGood, "Focus keyphrase in title")
		} else {
			add("keyphrase-title", models.CheckSEO, models.StatusWarning, "Add focus keyphrase to title")
		}
		if strings.Contains(strings.ToLower(description), keyphrase) {
			seoPoints += 10
			add("keyphrase-meta", models.CheckSEO, models.StatusGood, "Focus keyphrase in meta description")
		} else {
			add("keyphrase-meta", models.CheckSEO, models.StatusWarning, "Add focus keyphrase to meta description")
		}
	} else {
		add("keyphrase-missing", models.CheckSEO, models.StatusWarning, "No focus keyphrase set")
	}

	// Readability bucket.

	sentences := splitNonEmpty(sentenceSplit, body)
	paragraphs := splitNonEmpty(paragraphSplit, body)
	words := strings.Fields(body)

	avgSentenceLength := float64(len(words)) / float64(max(len(sentences), 1))
	switch {
	case avgSentenceLength <= 20:
		readabilityPoints += 15
		add("sentence-length", models.CheckReadability, models.StatusGood, fmt.Sprintf("Sentence length good (%.0f words avg)", avgSentenceLength))
	case avgSentenceLength <= 25:
		readabilityPoints += 8
		add("sentence-length", models.CheckReadability, models.StatusWarning, fmt.Sprintf("Sentences slightly long (%.0f words avg)", avgSentenceLength))
	default:
		add("sentence-length", models.CheckReadability, models.StatusBad, "Sentences too long, consider breaking up")
	}

	avgParagraphLength := float64(len(words)) / float64(max(len(paragraphs), 1))
	switch {
	case avgParagraphLength <= 100:
		readabilityPoints += 15
		add("paragraph-length", models.CheckReadability, models.StatusGood, "Paragraphs well-structured")
	case avgParagraphLength <= 150:
		readabilityPoints += 8
		add("paragraph-length", models.CheckReadability, models.StatusWarning, "Some paragraphs could be shorter")
	default:
		add("paragraph-length", models.CheckReadability, models.StatusBad, "Paragraphs too long")
	}

	// AI-readiness bucket.

	if markdownH2.MatchString(body) || containsHTMLElement(body, "h2") {
		aiPoints += 10
		add("subheadings", models.CheckAI, models.StatusGood, "Subheadings present")
	} else {
		add("subheadings", models.CheckAI, models.StatusWarning, "Add H2 subheadings for better structure")
	}

	var firstParagraph string
	if len(paragraphs) > 0 {
		firstParagraph = paragraphs[0]
	}
	introWords := len(strings.Fields(firstParagraph))
	if introWords > 0 && introWords <= 100 {
		aiPoints += 10
		add("clear-intro", models.CheckAI, models.StatusGood, "Intro is concise")
	} else if introWords > 100 {
		add("clear-intro", models.CheckAI, models.StatusWarning, "Intro too long (keep under 100 words)")
	}

	if markdownBullet.MatchString(body) || containsHTMLElement(body, "li") {
		aiPoints += 10
		add("bullet-points", models.CheckAI, models.StatusGood, "Bullet points found")
	} else {
		add("bullet-points", models.CheckAI, models.StatusWarning, "Consider adding bullet points")
	}

	return models.Analysis{
		SEOScore:         scaleScore(seoPoints, seoPointsMax),
		ReadabilityScore: scaleScore(readabilityPoints, readabilityPointsMax),
		AIReadinessScore: scaleScore(aiPoints, aiPointsMax),
		Checks:           checks,
	}
}

func scaleScore(points, maxPoints int) int {
	scaled := int(math.Round(float64(points) / float64(maxPoints) * 100))
	return min(100, scaled)
}

func splitNonEmpty(re *regexp.Regexp, s string) []string {
	var out []string
	for _, part := range re.Split(s, -1) {
		if strings.TrimSpace(part) != "" {
			out = append(out, part)
		}
	}
	return out
}

// containsHTMLElement reports whether the body, parsed as (possibly
// partial) HTML, contains the given element. The parser is tolerant of
// markdown bodies; those simply produce no such elements.
func containsHTMLElement(body, element string) bool {
	if !strings.Contains(body, "<") {
		return false
	}
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return false
	}

	var found bool
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found {
			return
		}
		if n.Type == html.ElementNode && n.Data == element {
			found = true
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

// AnalyzerStore is the storage surface the content analyzer needs.
type AnalyzerStore interface {
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	PublishedArticles(ctx context.Context) ([]*models.Article, error)
	ArticlesBySEOScore(ctx context.Context) ([]*models.Article, error)
	UpdateArticleScores(ctx context.Context, id string, seo, readability, aiReadiness int) error
}

// Analyzer runs content analysis against stored articles and persists
// the three aggregate scores.
type Analyzer struct {
	store AnalyzerStore
}

// NewAnalyzer wires an analyzer to its store.
func NewAnalyzer(store AnalyzerStore) *Analyzer {
	return &Analyzer{store: store}
}

// AnalyzeArticle runs a fresh analysis without persisting anything.
func (a *Analyzer) AnalyzeArticle(ctx context.Context, articleID string) (*models.Article, *models.Analysis, error) {
	article, err := a.store.GetArticle(ctx, articleID)
	if err != nil {
		return nil, nil, err
	}
	analysis := Analyze(ContentOf(article))
	return article, &analysis, nil
}

// UpdateScores re-runs the analysis and writes the three aggregate
// scores back to the article. The individual checks are not persisted.
func (a *Analyzer) UpdateScores(ctx context.Context, articleID string) (*models.Analysis, error) {
	article, err := a.store.GetArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	analysis := Analyze(ContentOf(article))
	if err := a.store.UpdateArticleScores(ctx, articleID, analysis.SEOScore, analysis.ReadabilityScore, analysis.AIReadinessScore); err != nil {
		return nil, fmt.Errorf("persist scores: %w", err)
	}
	return &analysis, nil
}

// Overview buckets published articles by their stored seoScore.
func (a *Analyzer) Overview(ctx context.Context) (*models.SEOOverview, error) {
	articles, err := a.store.PublishedArticles(ctx)
	if err != nil {
		return nil, fmt.Errorf("load published articles: %w", err)
	}

	overview := &models.SEOOverview{TotalArticles: len(articles)}
	total := 0
	for _, article := range articles {
		score := article.Metrics.SEOScore
		total += score
		switch {
		case score >= 70:
			overview.Breakdown.Optimized++
		case score >= 40:
			overview.Breakdown.NeedsImprovement++
		default:
			overview.Breakdown.Poor++
		}
	}

	if len(articles) > 0 {
		overview.AverageSEOScore = int(math.Round(float64(total) / float64(len(articles))))
	}
	overview.OptimizedPercent = int(math.Round(float64(overview.Breakdown.Optimized) / float64(max(len(articles), 1)) * 100))

	return overview, nil
}

// ArticleList returns published articles with their stored scores,
// worst seoScore first so editors see what needs attention.
func (a *Analyzer) ArticleList(ctx context.Context) ([]models.SEOArticle, error) {
	articles, err := a.store.ArticlesBySEOScore(ctx)
	if err != nil {
		return nil, fmt.Errorf("load articles: %w", err)
	}

	list := make([]models.SEOArticle, 0, len(articles))
	for _, article := range articles {
		list = append(list, models.SEOArticle{
			ID:               article.ID,
			Title:            article.Title,
			Slug:             article.Slug,
			Category:         categoryName(article),
			SEOScore:         article.Metrics.SEOScore,
			ReadabilityScore: article.Metrics.ReadabilityScore,
			AIReadinessScore: article.Metrics.AIReadinessScore,
			PublishedAt:      article.PublishedAt,
		})
	}
	return list, nil
}
