package vault

import (
	"fmt"
	"strings"

	"secondbrain/internal/model"
)

// RenderContentNote builds the Markdown + frontmatter body for a
// ContentRecord and its latest ProcessingRun (spec.md §4.9 step 1's
// "template collaborator"). Frontmatter carries the fields every note
// needs (`id`, `title`, `type`, `tags`); the body layers in the
// orchestrator's enrichment output when a run is present.
func RenderContentNote(rec model.ContentRecord, run model.ProcessingRun) (string, error) {
	fm := Frontmatter{
		ID:    rec.ContentUUID,
		Title: rec.Title,
		Type:  string(rec.SourceType),
		Tags:  rec.Tags,
	}
	if rec.SourceURL != "" {
		fm.Extra = map[string]any{"source_url": rec.SourceURL}
	}

	var body strings.Builder
	fmt.Fprintf(&body, "# %s\n\n", rec.Title)

	if summary, ok := run.Summaries["standard"]; ok && summary != "" {
		body.WriteString(summary)
		body.WriteString("\n\n")
	} else if rec.FullText != "" {
		body.WriteString(excerpt(rec.FullText, 1000))
		body.WriteString("\n\n")
	}

	if len(run.Concepts) > 0 {
		body.WriteString("## Concepts\n\n")
		for _, c := range run.Concepts {
			body.WriteString("- ")
			body.WriteString(WikilinkTarget(c.Name, ""))
			if c.Definition != "" {
				fmt.Fprintf(&body, ": %s", c.Definition)
			}
			body.WriteString("\n")
		}
		body.WriteString("\n")
	}

	if len(run.Connections) > 0 {
		body.WriteString("## Connections\n\n")
		for _, c := range run.Connections {
			fmt.Fprintf(&body, "- %s %s (%s, strength %.2f)\n", c.RelationshipType, c.TargetContentUUID, c.Explanation, c.Strength)
		}
		body.WriteString("\n")
	}

	if len(run.Followups) > 0 {
		body.WriteString("## Follow-ups\n\n")
		for _, f := range run.Followups {
			fmt.Fprintf(&body, "- %s\n", f)
		}
		body.WriteString("\n")
	}

	if len(run.Questions) > 0 {
		body.WriteString("## Questions\n\n")
		for _, q := range run.Questions {
			fmt.Fprintf(&body, "- %s\n", q)
		}
		body.WriteString("\n")
	}

	for _, a := range rec.Annotations {
		fmt.Fprintf(&body, "> [%s] %s\n\n", a.Type, a.Content)
	}

	return RenderNote(fm, strings.TrimRight(body.String(), "\n")+"\n")
}

func excerpt(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
