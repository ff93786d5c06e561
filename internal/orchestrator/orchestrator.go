// Package orchestrator implements C7: the staged enrichment pipeline
// that turns one saved ContentRecord into a ProcessingRun (analysis,
// summaries, extraction, tags, connections, follow-ups, cards) and
// hands the result to the tri-store writer. Grounded on spec.md §4.7's
// nine ordered stages and original_source's orchestrator service,
// which drives the same stage sequence behind one content_uuid.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"secondbrain/internal/cards"
	"secondbrain/internal/concept"
	"secondbrain/internal/costledger"
	"secondbrain/internal/errkind"
	"secondbrain/internal/graphstore"
	"secondbrain/internal/llm"
	"secondbrain/internal/logging"
	"secondbrain/internal/model"
	"secondbrain/internal/retry"
	"secondbrain/internal/sqlstore"
	"secondbrain/internal/taxonomy"
	"secondbrain/internal/tristore"
)

var log = logging.Get(logging.CategoryOrchestrator)

// Orchestrator runs the nine-stage enrichment pipeline for one
// content_uuid at a time. It holds no per-run state.
type Orchestrator struct {
	SQL       *sqlstore.Store
	Graph     graphstore.Store
	LLM       llm.Client
	Ledger    costledger.Ledger
	Taxonomy  *taxonomy.Cache
	Tristore  *tristore.Writer
	Cards     *cards.Generator
	RetryOpts retry.Options

	// ConnectionTopK/ConnectionThreshold tune stage 6's vector search.
	ConnectionTopK       int
	ConnectionThreshold  float64
	// DeleteCardsOnReprocess is the stage 1 card-cleanup flag; default
	// false preserves review history. Setting it to true deletes no
	// cards: cleanup only logs a warning and keeps them.
	DeleteCardsOnReprocess bool
}

// New builds an Orchestrator with spec.md's documented defaults.
func New(sql *sqlstore.Store, graph graphstore.Store, client llm.Client, ledger costledger.Ledger, tax *taxonomy.Cache, tw *tristore.Writer) *Orchestrator {
	return &Orchestrator{
		SQL: sql, Graph: graph, LLM: client, Ledger: ledger, Taxonomy: tax, Tristore: tw,
		Cards:               cards.NewGenerator(),
		RetryOpts:           retry.DefaultOptions(),
		ConnectionTopK:      5,
		ConnectionThreshold: 0.75,
	}
}

// usageCollector batches LLM usage across a run for a single end-of-run
// ledger submission (spec.md §4.7: "costs from all stages are batched
// and submitted to C1 at the end").
type usageCollector struct {
	pipeline string
	content  string
	records  []model.CostRecord
}

func (u *usageCollector) add(operation string, usage llm.Usage) {
	u.records = append(u.records, model.CostRecord{
		Model: usage.Model, Provider: usage.Provider, RequestType: usage.RequestType,
		InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens,
		Pipeline: u.pipeline, ContentUUID: u.content, Operation: operation,
		LatencyMS: usage.LatencyMS, Success: usage.Success, ErrorMessage: usage.ErrorMessage,
		CreatedAt: time.Now().UTC(),
	})
}

// Process runs the full enrichment pipeline for contentUUID. A failed
// stage stops the pipeline: the run is marked failed with an
// error_message and later stages do not run (spec.md §4.7).
func (o *Orchestrator) Process(ctx context.Context, contentUUID string) error {
	rec, err := o.SQL.Load(ctx, contentUUID)
	if err != nil {
		return errkind.Wrap(errkind.Invariant, "load content", fmt.Errorf("orchestrator: %w", err))
	}

	if err := o.cleanupBeforeReprocess(ctx, contentUUID); err != nil {
		log.Warn("cleanup before reprocess for %s: %v", contentUUID, err)
	}

	if err := o.SQL.UpdateStatus(ctx, contentUUID, model.StatusProcessing, ""); err != nil {
		log.Warn("mark %s processing: %v", contentUUID, err)
	}

	usage := &usageCollector{pipeline: "orchestrator", content: contentUUID}
	run := model.ProcessingRun{ContentUUID: contentUUID, Status: model.RunStatusRunning, StartedAt: time.Now().UTC()}

	if err := o.runStages(ctx, &rec, &run, usage); err != nil {
		run.Status = model.RunStatusFailed
		run.ErrorMessage = err.Error()
		completed := time.Now().UTC()
		run.CompletedAt = &completed
		o.submitUsage(ctx, usage)
		if _, saveErr := o.SQL.SaveRun(ctx, run); saveErr != nil {
			log.Error("save failed run for %s: %v", contentUUID, saveErr)
		}
		if statusErr := o.SQL.UpdateStatus(ctx, contentUUID, model.StatusFailed, err.Error()); statusErr != nil {
			log.Error("mark %s failed: %v", contentUUID, statusErr)
		}
		return err
	}

	run.Status = model.RunStatusDone
	completed := time.Now().UTC()
	run.CompletedAt = &completed
	run.ModelsUsed = modelsUsed(usage.records)
	run.TotalCostUSD = totalCost(usage.records)

	cardList := o.Cards.GenerateFromConcepts(contentUUID, run.Concepts, rec.Tags)

	if o.Tristore != nil {
		o.Tristore.Persist(ctx, &rec, run)
		o.Tristore.PersistCards(ctx, cardList)
	}
	if err := o.SQL.UpdateContent(ctx, rec); err != nil {
		log.Warn("update content %s after persist: %v", contentUUID, err)
	}
	if err := o.SQL.UpdateStatus(ctx, contentUUID, model.StatusProcessed, ""); err != nil {
		log.Warn("mark %s processed: %v", contentUUID, err)
	}
	o.submitUsage(ctx, usage)
	return nil
}

func (o *Orchestrator) submitUsage(ctx context.Context, usage *usageCollector) {
	if o.Ledger == nil || len(usage.records) == 0 {
		return
	}
	if err := o.Ledger.RecordMany(ctx, usage.records); err != nil {
		log.Error("submit usage for %s: %v", usage.content, err)
	}
}

// cleanupBeforeReprocess implements stage 1: delete prior runs
// (cascades children) and delete outgoing graph relationships. Cards
// are never deleted (see DeleteCardsOnReprocess), and duplicate
// concept-note files are not cleaned up here or elsewhere;
// internal/concept.Reconcile only computes merge plans.
func (o *Orchestrator) cleanupBeforeReprocess(ctx context.Context, contentUUID string) error {
	if _, err := o.SQL.LatestRun(ctx, contentUUID); err != nil {
		return nil // no prior run; nothing to clean up
	}
	if err := o.SQL.DeleteRuns(ctx, contentUUID); err != nil {
		return fmt.Errorf("delete prior runs: %w", err)
	}
	if o.Graph != nil {
		if err := o.Graph.DeleteContentRelationships(ctx, contentUUID); err != nil {
			return fmt.Errorf("delete prior relationships: %w", err)
		}
	}
	if o.DeleteCardsOnReprocess {
		// Deliberately not implemented: spec.md's default policy is to
		// preserve review history, and no component exposes a
		// delete-cards-by-content operation today.
		log.Warn("delete_cards_on_reprocess requested for %s but not implemented; preserving cards", contentUUID)
	}
	return nil
}

func (o *Orchestrator) runStages(ctx context.Context, rec *model.ContentRecord, run *model.ProcessingRun, usage *usageCollector) error {
	analysis, err := o.analyzeContent(ctx, *rec, usage)
	if err != nil {
		return err
	}
	run.Analysis = analysis

	summaries, err := o.summarize(ctx, *rec, usage)
	if err != nil {
		return err
	}
	run.Summaries = summaries

	extraction, err := o.extract(ctx, *rec, usage)
	if err != nil {
		return err
	}
	run.Extraction = extraction
	run.Concepts = canonicalizeConcepts(extraction.Concepts)

	domainTags, metaTags, err := o.classifyTags(ctx, *rec, analysis, usage)
	if err != nil {
		return err
	}
	run.DomainTags = domainTags
	run.MetaTags = metaTags
	rec.Tags = mergeTags(rec.Tags, domainTags, metaTags)

	connections, err := o.discoverConnections(ctx, *rec, summaries["standard"], usage)
	if err != nil {
		return err
	}
	run.Connections = connections

	followups, questions, err := o.followupsAndQuestions(ctx, *rec, summaries["standard"], usage)
	if err != nil {
		return err
	}
	run.Followups = followups
	run.Questions = questions

	return nil
}

type contentAnalysisResponse struct {
	ContentType string   `json:"content_type"`
	Domain      string   `json:"domain"`
	Complexity  string   `json:"complexity"`
	EstLength   int      `json:"estimated_length"`
	HasCode     bool     `json:"has_code"`
	HasMath     bool     `json:"has_math"`
	HasDiagrams bool     `json:"has_diagrams"`
	KeyTopics   []string `json:"key_topics"`
	Language    string   `json:"language"`
}

// analyzeContent is stage 2.
func (o *Orchestrator) analyzeContent(ctx context.Context, rec model.ContentRecord, usage *usageCollector) (model.ContentAnalysis, error) {
	prompt := fmt.Sprintf(`Analyze this content and classify it.

Title: %s
Content:
%s

Respond as JSON: {"content_type": "...", "domain": "...", "complexity": "beginner|intermediate|advanced",
"estimated_length": <int words>, "has_code": bool, "has_math": bool, "has_diagrams": bool,
"key_topics": ["..."], "language": "..."}. key_topics has at most 10 entries.`, rec.Title, truncate(rec.FullText, 6000))

	var parsed contentAnalysisResponse
	if err := o.completeJSON(ctx, "content_analysis", prompt, usage, &parsed); err != nil {
		return model.ContentAnalysis{}, err
	}
	if len(parsed.KeyTopics) > 10 {
		parsed.KeyTopics = parsed.KeyTopics[:10]
	}
	return model.ContentAnalysis{
		ContentType: parsed.ContentType, Domain: parsed.Domain, Complexity: parsed.Complexity,
		EstLength: parsed.EstLength, HasCode: parsed.HasCode, HasMath: parsed.HasMath,
		HasDiagrams: parsed.HasDiagrams, KeyTopics: parsed.KeyTopics, Language: parsed.Language,
	}, nil
}

// summarize is stage 3: three summaries at increasing detail.
func (o *Orchestrator) summarize(ctx context.Context, rec model.ContentRecord, usage *usageCollector) (map[string]string, error) {
	levels := []struct{ key, instruction string }{
		{"brief", "in one or two sentences"},
		{"standard", "in a short paragraph (4-6 sentences)"},
		{"detailed", "in several paragraphs covering all major points"},
	}
	out := make(map[string]string, len(levels))
	for _, lvl := range levels {
		prompt := fmt.Sprintf("Summarize the following content %s:\n\nTitle: %s\n\n%s", lvl.instruction, rec.Title, truncate(rec.FullText, 8000))
		resp, respUsage, err := o.LLM.Complete(ctx, "summarize_"+lvl.key, []llm.Message{{Role: "user", Content: prompt}}, llm.CompleteOptions{MaxTokens: 1000, Temperature: 0.3})
		usage.add("summarize_"+lvl.key, respUsage)
		if err != nil {
			return nil, errkind.Wrap(errkind.Transient, "summarization", err)
		}
		out[lvl.key] = resp
	}
	return out, nil
}

type extractionResponse struct {
	Concepts []struct {
		Name            string   `json:"name"`
		Definition      string   `json:"definition"`
		Importance      string   `json:"importance"`
		RelatedConcepts []struct {
			TargetName       string `json:"target_name"`
			RelationshipType string `json:"relationship_type"`
		} `json:"related_concepts"`
	} `json:"concepts"`
	KeyFindings   []string `json:"key_findings"`
	Methodologies []string `json:"methodologies"`
	Tools         []string `json:"tools"`
	People        []string `json:"people"`
}

// extract is stage 4.
func (o *Orchestrator) extract(ctx context.Context, rec model.ContentRecord, usage *usageCollector) (model.Extraction, error) {
	prompt := fmt.Sprintf(`Extract structured knowledge from this content.

Title: %s
Content:
%s

Respond as JSON: {"concepts": [{"name": "...", "definition": "...", "importance": "core|supporting|tangential",
"related_concepts": [{"target_name": "...", "relationship_type": "..."}]}],
"key_findings": ["..."], "methodologies": ["..."], "tools": ["..."], "people": ["..."]}`,
		rec.Title, truncate(rec.FullText, 8000))

	var parsed extractionResponse
	if err := o.completeJSON(ctx, "extraction", prompt, usage, &parsed); err != nil {
		return model.Extraction{}, err
	}

	concepts := make([]model.Concept, 0, len(parsed.Concepts))
	for _, c := range parsed.Concepts {
		related := make([]model.ConceptRelation, 0, len(c.RelatedConcepts))
		for _, r := range c.RelatedConcepts {
			related = append(related, model.ConceptRelation{TargetName: r.TargetName, RelationshipType: r.RelationshipType})
		}
		concepts = append(concepts, model.Concept{
			Name: c.Name, Definition: c.Definition, Importance: model.Importance(c.Importance), RelatedConcepts: related,
		})
	}

	return model.Extraction{
		Concepts: concepts, KeyFindings: parsed.KeyFindings, Methodologies: parsed.Methodologies,
		Tools: parsed.Tools, People: parsed.People,
	}, nil
}

// canonicalizeConcepts applies C8's canonicalization to every extracted
// concept before it reaches the tri-store writer (stage 4 -> C4's
// MERGE-by-canonical-name normal path, spec.md §4.8).
func canonicalizeConcepts(concepts []model.Concept) []model.Concept {
	out := make([]model.Concept, len(concepts))
	for i, c := range concepts {
		c.CanonicalName = concept.CanonicalName(c.Name)
		c.Aliases = concept.ExtractAliases(c.Name)
		out[i] = c
	}
	return out
}

// classifyTags is stage 5: tags outside the taxonomy are never stored
// on the record. They are logged at debug level and dropped; they are
// not kept as suggested_new_tags anywhere.
func (o *Orchestrator) classifyTags(ctx context.Context, rec model.ContentRecord, analysis model.ContentAnalysis, usage *usageCollector) (domainTags, metaTags []string, err error) {
	if o.Taxonomy != nil {
		if loadErr := o.Taxonomy.Load(); loadErr != nil {
			log.Warn("taxonomy load failed, classifying against stale/empty cache: %v", loadErr)
		}
	}

	candidates := append([]string{}, analysis.KeyTopics...)
	candidates = append(candidates, rec.Tags...)

	if o.Taxonomy == nil {
		return candidates, nil, nil
	}
	valid, suggested := o.Taxonomy.Partition(candidates)
	if len(suggested) > 0 {
		log.Debug("content %s: %d tags outside taxonomy, suggesting only: %v", rec.ContentUUID, len(suggested), suggested)
	}

	var domain, meta []string
	for _, t := range valid {
		if hasPrefix(t, "status/") || hasPrefix(t, "quality/") {
			meta = append(meta, t)
		} else {
			domain = append(domain, t)
		}
	}
	return domain, meta, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func mergeTags(existing, domain, meta []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range [][]string{existing, domain, meta} {
		for _, t := range group {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

type connectionJudgment struct {
	RelationshipType string  `json:"relationship_type"`
	Strength         float64 `json:"strength"`
	Explanation      string  `json:"explanation"`
}

// discoverConnections is stage 6: embed the standard summary, vector
// search for similar content, then have the LLM confirm relationship
// type/strength/explanation for each candidate above threshold.
func (o *Orchestrator) discoverConnections(ctx context.Context, rec model.ContentRecord, standardSummary string, usage *usageCollector) ([]model.Connection, error) {
	if o.Graph == nil || standardSummary == "" {
		return nil, nil
	}

	embeddings, embedUsage, err := o.LLM.Embed(ctx, []string{standardSummary})
	usage.add("connection_embedding", embedUsage)
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, "connection_embedding", err)
	}
	if len(embeddings) == 0 {
		return nil, errkind.Wrap(errkind.Malformed, "connection_embedding", fmt.Errorf("embed returned no vectors"))
	}

	candidates, err := o.Graph.VectorSearch(ctx, embeddings[0], "Content", o.ConnectionTopK, o.ConnectionThreshold)
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, "connection_vector_search", err)
	}

	var connections []model.Connection
	for _, cand := range candidates {
		if cand.ID == rec.ContentUUID {
			continue
		}
		prompt := fmt.Sprintf(`Content A: %s
%s

Content B: %s
%s

Do these two pieces of content relate? Respond as JSON:
{"relationship_type": "RELATES_TO|EXTENDS|CONTRADICTS|PREREQUISITE_FOR|APPLIES", "strength": 0.0-1.0, "explanation": "..."}`,
			rec.Title, standardSummary, cand.Title, cand.Summary)

		var judgment connectionJudgment
		if err := o.completeJSON(ctx, "connection_judgment", prompt, usage, &judgment); err != nil {
			log.Warn("connection judgment %s -> %s failed: %v", rec.ContentUUID, cand.ID, err)
			continue
		}
		if judgment.RelationshipType == "" {
			continue
		}
		connections = append(connections, model.Connection{
			SourceContentUUID: rec.ContentUUID, TargetContentUUID: cand.ID,
			RelationshipType: model.RelationshipType(judgment.RelationshipType),
			Strength:          judgment.Strength, Explanation: judgment.Explanation,
		})
	}
	return connections, nil
}

type followupResponse struct {
	Followups []string `json:"followups"`
	Questions []string `json:"mastery_questions"`
}

// followupsAndQuestions is stage 7.
func (o *Orchestrator) followupsAndQuestions(ctx context.Context, rec model.ContentRecord, standardSummary string, usage *usageCollector) (followups, questions []string, err error) {
	prompt := fmt.Sprintf(`Based on this content, suggest follow-up topics worth exploring and mastery-check questions.

Title: %s
Summary: %s

Respond as JSON: {"followups": ["..."], "mastery_questions": ["..."]}`, rec.Title, standardSummary)

	var parsed followupResponse
	if err := o.completeJSON(ctx, "followups_and_questions", prompt, usage, &parsed); err != nil {
		return nil, nil, err
	}
	return parsed.Followups, parsed.Questions, nil
}

// completeJSON wraps an LLM JSON-mode call with the orchestrator's
// retry policy and unmarshals the response into out.
func (o *Orchestrator) completeJSON(ctx context.Context, operation, prompt string, usage *usageCollector, out any) error {
	var resp string
	err := retry.Do(ctx, o.RetryOpts, func(ctx context.Context) error {
		r, respUsage, callErr := o.LLM.Complete(ctx, operation, []llm.Message{{Role: "user", Content: prompt}}, llm.CompleteOptions{MaxTokens: 2000, JSONMode: true})
		usage.add(operation, respUsage)
		if callErr != nil {
			return callErr
		}
		resp = r
		return nil
	})
	if err != nil {
		return errkind.Wrap(errkind.Transient, operation, err)
	}
	if err := json.Unmarshal([]byte(resp), out); err != nil {
		return errkind.Wrap(errkind.Malformed, operation, fmt.Errorf("parse %s response: %w", operation, err))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func modelsUsed(records []model.CostRecord) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		if !seen[r.Model] {
			seen[r.Model] = true
			out = append(out, r.Model)
		}
	}
	return out
}

func totalCost(records []model.CostRecord) float64 {
	var total float64
	for _, r := range records {
		total += r.CostUSD
	}
	return total
}
