package vault

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Frontmatter is the YAML metadata block at the top of a note,
// delimited by "---" lines (spec.md §6 vault filesystem layout).
type Frontmatter struct {
	ID    string   `yaml:"id"`
	Title string   `yaml:"title"`
	Type  string   `yaml:"type"`
	Tags  []string `yaml:"tags"`
	Extra map[string]any `yaml:",inline"`
}

// ParseNote splits raw note content into frontmatter and body. If no
// frontmatter delimiters are present, fm is zero-valued and body is the
// entire input.
func ParseNote(raw string) (fm Frontmatter, body string, err error) {
	const delim = "---"
	trimmed := strings.TrimLeft(raw, "\n")
	if !strings.HasPrefix(trimmed, delim) {
		return Frontmatter{}, raw, nil
	}

	rest := trimmed[len(delim):]
	end := strings.Index(rest, "\n"+delim)
	if end == -1 {
		return Frontmatter{}, raw, nil
	}

	yamlBlock := strings.TrimPrefix(rest[:end], "\n")
	// Skip the closing delimiter's line break, then the blank line
	// RenderNote writes between frontmatter and body.
	body = strings.TrimPrefix(strings.TrimPrefix(rest[end+len(delim)+1:], "\n"), "\n")

	if err := yaml.Unmarshal([]byte(yamlBlock), &fm); err != nil {
		return Frontmatter{}, raw, fmt.Errorf("vault: parse frontmatter: %w", err)
	}
	return fm, body, nil
}

// RenderNote serializes fm and body back into the delimited format.
func RenderNote(fm Frontmatter, body string) (string, error) {
	data, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("vault: render frontmatter: %w", err)
	}
	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(data)
	sb.WriteString("---\n\n")
	sb.WriteString(body)
	return sb.String(), nil
}
