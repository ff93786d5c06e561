package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"secondbrain/internal/costledger"
	"secondbrain/internal/llm"
	"secondbrain/internal/model"
)

// WebPipeline fetches an article URL and extracts its readable text,
// grounded on the teacher's researcher/scraper.go fetch-then-walk-the-
// DOM pattern (net/http + golang.org/x/net/html, same 1MB body cap).
type WebPipeline struct {
	HTTPClient *http.Client
	LLM        llm.Client
	Ledger     costledger.Ledger
	UserAgent  string
}

func (p *WebPipeline) client() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return http.DefaultClient
}

func (p *WebPipeline) userAgent() string {
	if p.UserAgent != "" {
		return p.UserAgent
	}
	return "secondbrain-capture/1.0"
}

func (p *WebPipeline) Supports(input Input) bool {
	return input.Type == InputArticle && input.URL != ""
}

func (p *WebPipeline) Process(ctx context.Context, input Input) (model.ContentRecord, error) {
	title, text, err := p.fetchAndExtract(ctx, input.URL)
	if err != nil {
		return model.ContentRecord{}, fmt.Errorf("pipeline/web: fetch %s: %w", input.URL, err)
	}
	if title == "" {
		title = input.Title
	}
	if title == "" {
		title = titleFromText(text)
	}

	h := sha256.Sum256([]byte(text))

	return model.ContentRecord{
		SourceType:  model.SourceArticle,
		Title:       title,
		SourceURL:   input.URL,
		FullText:    text,
		RawFileHash: hex.EncodeToString(h[:]),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (p *WebPipeline) fetchAndExtract(ctx context.Context, url string) (title, text string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", p.userAgent())

	resp, err := p.client().Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", "", err
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return "", "", err
	}

	return extractTitle(doc), extractArticleText(doc), nil
}

func extractTitle(doc *html.Node) string {
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

// extractArticleText concatenates text from article/main/section
// elements, skipping script/style, mirroring the teacher's DOM walk.
func extractArticleText(doc *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node, bool)
	walk = func(n *html.Node, inContent bool) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "nav", "footer", "header":
				return
			case "article", "main", "section", "p":
				inContent = true
			}
		}
		if n.Type == html.TextNode && inContent {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inContent)
		}
	}
	walk(doc, false)
	return strings.TrimSpace(sb.String())
}
