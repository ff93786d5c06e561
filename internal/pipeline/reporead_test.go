package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"secondbrain/internal/llm"
	"secondbrain/internal/model"
)

func TestParseGitHubURL(t *testing.T) {
	owner, repo, err := parseGitHubURL("https://github.com/golang/go")
	require.NoError(t, err)
	require.Equal(t, "golang", owner)
	require.Equal(t, "go", repo)

	_, _, err = parseGitHubURL("https://example.com/golang/go")
	require.Error(t, err)
}

func TestRepoReadPipelineSupportsGitHubCodeInputOnly(t *testing.T) {
	p := &RepoReadPipeline{}
	require.True(t, p.Supports(Input{Type: InputCode, URL: "https://github.com/golang/go"}))
	require.False(t, p.Supports(Input{Type: InputCode, URL: "https://gitlab.com/x/y"}))
	require.False(t, p.Supports(Input{Type: InputArticle, URL: "https://github.com/golang/go"}))
}

func newGitHubTestServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/readme"):
			w.Write([]byte("# hello\nthis project does x"))
		case strings.Contains(r.URL.Path, "/git/trees/"):
			w.Write([]byte(`{"tree":[{"path":"main.go","type":"blob"},{"path":"README.md","type":"blob"}]}`))
		default:
			w.Write([]byte(`{
				"full_name":"octocat/hello",
				"html_url":"https://github.com/octocat/hello",
				"description":"a sample repo",
				"language":"Go",
				"stargazers_count":42,
				"forks_count":3,
				"topics":["go","sample"],
				"default_branch":"main",
				"owner":{"login":"octocat"},
				"created_at":"2020-01-01T00:00:00Z"
			}`))
		}
	}))
}

func TestRepoReadPipelineProcessBuildsAnalysis(t *testing.T) {
	srv := newGitHubTestServer(t)
	defer srv.Close()

	stub := &llm.StubClient{CompleteFn: func(op string, msgs []llm.Message) (string, error) {
		return "## Purpose\nDemonstrates Go basics.", nil
	}}
	ledger := &stubLedger{}

	p := &RepoReadPipeline{HTTPClient: srv.Client(), LLM: stub, Ledger: ledger}
	p.apiBaseOverride = srv.URL

	rec, err := p.Process(context.Background(), Input{Type: InputCode, URL: "https://github.com/octocat/hello"})
	require.NoError(t, err)

	require.Equal(t, model.SourceCode, rec.SourceType)
	require.Equal(t, "octocat/hello", rec.Title)
	require.Contains(t, rec.FullText, "Demonstrates Go basics.")
	require.Equal(t, []string{"octocat"}, rec.Authors)
	require.Equal(t, []string{"go", "sample"}, rec.Tags)
	require.Equal(t, 42, rec.Metadata["stars"])
	require.Len(t, ledger.records, 1)
}
