package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"secondbrain/internal/costledger"
	"secondbrain/internal/llm"
	"secondbrain/internal/model"
)

const (
	githubAPIBase        = "https://api.github.com"
	repoReadMaxTreeFiles = 100
	repoReadTreeDisplay  = 50
	repoReadReadmeLimit  = 8000
)

// RepoReadPipeline fetches a GitHub repository's README and file tree,
// then asks the LLM to summarize purpose/architecture/tech stack/
// learnings, grounded on original_source's github_importer.py.
type RepoReadPipeline struct {
	HTTPClient  *http.Client
	AccessToken string
	LLM         llm.Client
	Ledger      costledger.Ledger

	// apiBaseOverride lets tests point at an httptest server instead of
	// the real GitHub API; empty means use githubAPIBase.
	apiBaseOverride string
}

func (p *RepoReadPipeline) client() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return http.DefaultClient
}

func (p *RepoReadPipeline) apiBase() string {
	if p.apiBaseOverride != "" {
		return p.apiBaseOverride
	}
	return githubAPIBase
}

func (p *RepoReadPipeline) Supports(input Input) bool {
	return input.Type == InputCode && strings.HasPrefix(input.URL, "https://github.com/")
}

type githubRepo struct {
	FullName        string   `json:"full_name"`
	HTMLURL         string   `json:"html_url"`
	Description     string   `json:"description"`
	Language        string   `json:"language"`
	StargazersCount int      `json:"stargazers_count"`
	ForksCount      int      `json:"forks_count"`
	Topics          []string `json:"topics"`
	DefaultBranch   string   `json:"default_branch"`
	Fork            bool     `json:"fork"`
	ID              int64    `json:"id"`
	CreatedAt       string   `json:"created_at"`
	Owner           struct {
		Login string `json:"login"`
	} `json:"owner"`
	License struct {
		Name string `json:"name"`
	} `json:"license"`
}

func (p *RepoReadPipeline) Process(ctx context.Context, input Input) (model.ContentRecord, error) {
	owner, name, err := parseGitHubURL(input.URL)
	if err != nil {
		return model.ContentRecord{}, fmt.Errorf("pipeline/reporead: %w", err)
	}

	var repo githubRepo
	if err := p.getJSON(ctx, fmt.Sprintf("%s/repos/%s/%s", p.apiBase(), owner, name), &repo); err != nil {
		return model.ContentRecord{}, fmt.Errorf("pipeline/reporead: fetch repo %s/%s: %w", owner, name, err)
	}

	readme := p.getReadme(ctx, owner, name)
	tree := p.getTree(ctx, owner, name)

	analysis := p.summarize(ctx, repo, readme, tree)

	createdAt := time.Now().UTC()
	if repo.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, repo.CreatedAt); err == nil {
			createdAt = t
		}
	}

	var authors []string
	if repo.Owner.Login != "" {
		authors = []string{repo.Owner.Login}
	}

	return model.ContentRecord{
		SourceType: model.SourceCode,
		Title:      repo.FullName,
		SourceURL:  repo.HTMLURL,
		Authors:    authors,
		FullText:   analysis,
		Tags:       repo.Topics,
		CreatedAt:  createdAt,
		Metadata: map[string]any{
			"github_id":      repo.ID,
			"stars":          repo.StargazersCount,
			"forks":          repo.ForksCount,
			"language":       repo.Language,
			"license":        repo.License.Name,
			"description":    repo.Description,
			"is_fork":        repo.Fork,
			"default_branch": repo.DefaultBranch,
		},
	}, nil
}

func parseGitHubURL(url string) (owner, repo string, err error) {
	trimmed := strings.TrimPrefix(url, "https://github.com/")
	parts := strings.SplitN(trimmed, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("not a valid github repository URL: %s", url)
	}
	repo = strings.SplitN(strings.SplitN(parts[1], "#", 2)[0], "?", 2)[0]
	return parts[0], repo, nil
}

func (p *RepoReadPipeline) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if p.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.AccessToken)
	}

	resp, err := p.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (p *RepoReadPipeline) getReadme(ctx context.Context, owner, name string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/repos/%s/%s/readme", p.apiBase(), owner, name), nil)
	if err != nil {
		return ""
	}
	req.Header.Set("Accept", "application/vnd.github.raw")
	if p.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.AccessToken)
	}

	resp, err := p.client().Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, repoReadReadmeLimit*4))
	if err != nil {
		return ""
	}
	return string(body)
}

type githubTreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

type githubTreeResponse struct {
	Tree []githubTreeEntry `json:"tree"`
}

func (p *RepoReadPipeline) getTree(ctx context.Context, owner, name string) []string {
	var resp githubTreeResponse
	url := fmt.Sprintf("%s/repos/%s/%s/git/trees/HEAD?recursive=1", p.apiBase(), owner, name)
	if err := p.getJSON(ctx, url, &resp); err != nil {
		return nil
	}

	var paths []string
	for _, entry := range resp.Tree {
		if entry.Type != "blob" {
			continue
		}
		paths = append(paths, entry.Path)
		if len(paths) >= repoReadMaxTreeFiles {
			break
		}
	}
	return paths
}

func (p *RepoReadPipeline) summarize(ctx context.Context, repo githubRepo, readme string, tree []string) string {
	header := fmt.Sprintf("# %s\n\n**Description:** %s\n**Stars:** %d | **Forks:** %d\n**Language:** %s\n**Topics:** %s",
		repo.FullName, orNone(repo.Description), repo.StargazersCount, repo.ForksCount, orNone(repo.Language), strings.Join(repo.Topics, ", "))

	context := p.buildContext(repo, readme, tree)
	prompt := `Analyze this GitHub repository and provide a structured summary for learning purposes.

Include the following sections:
1. Purpose: What problem does this project solve? Who is it for?
2. Architecture Overview: Key design patterns, architecture decisions, and code organization
3. Tech Stack: Main technologies, frameworks, and notable dependencies
4. Key Learnings: What can be learned from this project? Best practices demonstrated?
5. Notable Features: Interesting or innovative features worth studying

Keep the analysis concise but informative.`

	resp, usage, err := p.LLM.Complete(ctx, "repo_analysis", []llm.Message{
		{Role: "system", Content: "You are a senior software engineer analyzing a GitHub repository.\n\nRepository Information:\n" + context},
		{Role: "user", Content: prompt},
	}, llm.CompleteOptions{MaxTokens: 2000, Temperature: 0.3})

	if p.Ledger != nil {
		_ = p.Ledger.Record(ctx, model.CostRecord{
			Model: usage.Model, Provider: usage.Provider, RequestType: usage.RequestType,
			InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens,
			Pipeline: "reporead", Operation: "repo_analysis",
			LatencyMS: usage.LatencyMS, Success: usage.Success, ErrorMessage: usage.ErrorMessage,
			CreatedAt: time.Now().UTC(),
		})
	}

	if err != nil || strings.TrimSpace(resp) == "" {
		return header
	}
	return header + "\n\n" + resp
}

func (p *RepoReadPipeline) buildContext(repo githubRepo, readme string, tree []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Repository: %s\n", repo.FullName)
	fmt.Fprintf(&sb, "Description: %s\n", orNone(repo.Description))
	fmt.Fprintf(&sb, "Language: %s\n", orNone(repo.Language))
	fmt.Fprintf(&sb, "Stars: %d | Forks: %d\n", repo.StargazersCount, repo.ForksCount)
	fmt.Fprintf(&sb, "Topics: %s\n", orNone(strings.Join(repo.Topics, ", ")))

	if readme != "" {
		excerpt := readme
		if len(excerpt) > repoReadReadmeLimit {
			excerpt = excerpt[:repoReadReadmeLimit] + "\n... (truncated)"
		}
		fmt.Fprintf(&sb, "\n## README\n%s\n", excerpt)
	}

	if len(tree) > 0 {
		shown := tree
		suffix := ""
		if len(tree) > repoReadTreeDisplay {
			shown = tree[:repoReadTreeDisplay]
			suffix = fmt.Sprintf("\n... and %d more files", len(tree)-repoReadTreeDisplay)
		}
		fmt.Fprintf(&sb, "\n## File Structure\n%s%s\n", strings.Join(shown, "\n"), suffix)
	}

	return sb.String()
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}
