// Package graphstore implements C4, the property-graph adapter backing
// ContentNode, ConceptNode, and NoteNode, over neo4j-go-driver/v5.
// Every write is a Cypher MERGE, grounded on the driver-wrapper pattern
// in evalgo-org-eve's db/repository/neo4j.go (session-per-call,
// ExecuteWrite/ExecuteRead closures, parameterized queries).
package graphstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"secondbrain/internal/logging"
	"secondbrain/internal/model"
)

var log = logging.Get(logging.CategoryGraph)

// Store is the C4 contract consumed by the tri-store writer and the
// vault reconciler.
type Store interface {
	CreateContentNode(ctx context.Context, n ContentNode) error
	CreateConceptNode(ctx context.Context, c ConceptNode) error
	CreateRelationship(ctx context.Context, sourceID, targetID string, relType model.RelationshipType, properties map[string]any) error
	LinkConceptToConcept(ctx context.Context, sourceName, targetName string, relType model.RelationshipType) (bool, error)
	DeleteContentRelationships(ctx context.Context, contentUUID string) error
	VectorSearch(ctx context.Context, embedding []float32, nodeType string, topK int, threshold float64) ([]SearchResult, error)
	MergeNoteNode(ctx context.Context, n model.NoteNode) error
	SyncNoteLinks(ctx context.Context, sourceID string, targetIDs []string) error
	LinkContentToNoteByPath(ctx context.Context, filePath string) error
	Close(ctx context.Context) error
}

// ContentNode is the graph-store projection of a ContentRecord.
type ContentNode struct {
	UUID      string
	Title     string
	Type      string
	Summary   string
	Embedding []float32
	Tags      []string
	URL       string
	FilePath  string
	Metadata  map[string]any
}

// ConceptNode is the graph-store projection of a model.Concept.
type ConceptNode struct {
	Name       string // display name, pre-canonicalization
	Definition string
	Aliases    []string
	Embedding  []float32
	FilePath   string
}

// SearchResult is one hit from VectorSearch.
type SearchResult struct {
	ID      string
	Title   string
	Summary string
	Score   float64
}

// Neo4jStore is the concrete Store over a live Neo4j driver.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
}

// Connect opens a driver against uri, verifies connectivity, and
// bootstraps the indexes/constraints required by spec.md §4.4.
func Connect(ctx context.Context, uri, username, password string) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("graphstore: create driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("graphstore: connect to %s: %w", uri, err)
	}

	s := &Neo4jStore{driver: driver}
	if err := s.bootstrapSchema(ctx); err != nil {
		driver.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Neo4jStore) bootstrapSchema(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	statements := []string{
		`CREATE CONSTRAINT content_id_unique IF NOT EXISTS FOR (c:Content) REQUIRE c.id IS UNIQUE`,
		`CREATE CONSTRAINT concept_canonical_unique IF NOT EXISTS FOR (c:Concept) REQUIRE c.canonical_name IS UNIQUE`,
		`CREATE INDEX content_type_idx IF NOT EXISTS FOR (c:Content) ON (c.type)`,
		`CREATE INDEX content_created_idx IF NOT EXISTS FOR (c:Content) ON (c.created_at)`,
		`CREATE VECTOR INDEX content_embedding_idx IF NOT EXISTS FOR (c:Content) ON (c.embedding)
			OPTIONS {indexConfig: {` + "`vector.dimensions`" + `: 768, ` + "`vector.similarity_function`" + `: 'cosine'}}`,
		`CREATE VECTOR INDEX concept_embedding_idx IF NOT EXISTS FOR (c:Concept) ON (c.embedding)
			OPTIONS {indexConfig: {` + "`vector.dimensions`" + `: 768, ` + "`vector.similarity_function`" + `: 'cosine'}}`,
	}

	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("graphstore: bootstrap schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// sanitizeRelType uppercases relType and replaces hyphens/spaces with
// underscores per spec.md §4.4's create_relationship rule. Cypher
// cannot parameterize a relationship type, so this value must never
// come from unsanitized user input.
func sanitizeRelType(relType string) string {
	relType = strings.ToUpper(relType)
	relType = strings.ReplaceAll(relType, "-", "_")
	relType = strings.ReplaceAll(relType, " ", "_")
	return relType
}

// CreateContentNode MERGEs a Content node by uuid, overwriting
// properties and the embedding vector.
func (s *Neo4jStore) CreateContentNode(ctx context.Context, n ContentNode) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MERGE (c:Content {id: $id})
			SET c.title = $title, c.type = $type, c.summary = $summary, c.embedding = $embedding,
			    c.tags = $tags, c.url = $url, c.file_path = $filePath, c.metadata = $metadata
		`, map[string]any{
			"id": n.UUID, "title": n.Title, "type": n.Type, "summary": n.Summary,
			"embedding": toFloat64Slice(n.Embedding), "tags": n.Tags, "url": n.URL,
			"filePath": n.FilePath, "metadata": flattenMetadata(n.Metadata),
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("graphstore: create content node %s: %w", n.UUID, err)
	}
	return nil
}

// CreateConceptNode MERGEs a Concept node by canonical name, keeping
// the longer definition and unioning aliases (spec.md invariant 6).
func (s *Neo4jStore) CreateConceptNode(ctx context.Context, c ConceptNode) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	canonical := canonicalName(c.Name)
	aliases := append([]string{}, c.Aliases...)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `MATCH (c:Concept {canonical_name: $canonical}) RETURN c.definition, c.aliases`,
			map[string]any{"canonical": canonical})
		if err != nil {
			return nil, err
		}

		definition := c.Definition
		if result.Next(ctx) {
			record := result.Record()
			if existingDef, ok := record.Get("c.definition"); ok {
				if s, ok := existingDef.(string); ok && len(s) > len(definition) {
					definition = s
				}
			}
			if existingAliases, ok := record.Get("c.aliases"); ok {
				if list, ok := existingAliases.([]any); ok {
					for _, a := range list {
						if str, ok := a.(string); ok {
							aliases = appendUnique(aliases, str)
						}
					}
				}
			}
		}
		if err := result.Err(); err != nil {
			return nil, err
		}

		_, err = tx.Run(ctx, `
			MERGE (c:Concept {canonical_name: $canonical})
			SET c.id = $canonical, c.name = $name, c.definition = $definition, c.aliases = $aliases,
			    c.embedding = $embedding, c.file_path = $filePath
		`, map[string]any{
			"canonical": canonical, "name": c.Name, "definition": definition, "aliases": aliases,
			"embedding": toFloat64Slice(c.Embedding), "filePath": c.FilePath,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("graphstore: create concept node %q: %w", c.Name, err)
	}
	return nil
}

// CreateRelationship MERGEs an edge of relType (sanitized) between two
// nodes identified by their id property, regardless of label.
func (s *Neo4jStore) CreateRelationship(ctx context.Context, sourceID, targetID string, relType model.RelationshipType, properties map[string]any) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (source {id: $sourceId}), (target {id: $targetId})
		MERGE (source)-[r:%s]->(target)
		SET r += $properties
	`, sanitizeRelType(string(relType)))

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, map[string]any{
			"sourceId": sourceID, "targetId": targetID, "properties": flattenMetadata(properties),
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("graphstore: create relationship %s->%s: %w", sourceID, targetID, err)
	}
	return nil
}

// LinkConceptToConcept looks up two Concept nodes by canonical name
// and creates an edge between them if both exist.
func (s *Neo4jStore) LinkConceptToConcept(ctx context.Context, sourceName, targetName string, relType model.RelationshipType) (bool, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (a:Concept {canonical_name: $source}), (b:Concept {canonical_name: $target})
		MERGE (a)-[:%s]->(b)
		RETURN count(a) > 0 AS linked
	`, sanitizeRelType(string(relType)))

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		r, err := tx.Run(ctx, query, map[string]any{
			"source": canonicalName(sourceName), "target": canonicalName(targetName),
		})
		if err != nil {
			return false, err
		}
		if r.Next(ctx) {
			linked, _ := r.Record().Get("linked")
			b, _ := linked.(bool)
			return b, r.Err()
		}
		return false, r.Err()
	})
	if err != nil {
		return false, fmt.Errorf("graphstore: link concept %q -> %q: %w", sourceName, targetName, err)
	}
	linked, _ := result.(bool)
	return linked, nil
}

// DeleteContentRelationships removes all outgoing edges of a Content
// node, used before reprocessing (spec.md §4.7).
func (s *Neo4jStore) DeleteContentRelationships(ctx context.Context, contentUUID string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `MATCH (c:Content {id: $id})-[r]->() DELETE r`, map[string]any{"id": contentUUID})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("graphstore: delete relationships for %s: %w", contentUUID, err)
	}
	return nil
}

// VectorSearch runs a cosine-similarity query against nodeType's
// vector index, returning hits with score >= threshold.
func (s *Neo4jStore) VectorSearch(ctx context.Context, embedding []float32, nodeType string, topK int, threshold float64) ([]SearchResult, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	indexName := "content_embedding_idx"
	if nodeType == "Concept" {
		indexName = "concept_embedding_idx"
	}

	results, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		r, err := tx.Run(ctx, `
			CALL db.index.vector.queryNodes($indexName, $topK, $embedding)
			YIELD node, score
			WHERE score >= $threshold
			RETURN node.id AS id, node.title AS title, node.summary AS summary, score
		`, map[string]any{
			"indexName": indexName, "topK": topK, "embedding": toFloat64Slice(embedding), "threshold": threshold,
		})
		if err != nil {
			return nil, err
		}

		var out []SearchResult
		for r.Next(ctx) {
			rec := r.Record()
			id, _ := rec.Get("id")
			title, _ := rec.Get("title")
			summary, _ := rec.Get("summary")
			score, _ := rec.Get("score")
			out = append(out, SearchResult{
				ID:      asString(id),
				Title:   asString(title),
				Summary: asString(summary),
				Score:   asFloat64(score),
			})
		}
		return out, r.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("graphstore: vector search: %w", err)
	}
	out, _ := results.([]SearchResult)
	return out, nil
}

// MergeNoteNode MERGEs a Note node by id, used by the vault reconciler.
func (s *Neo4jStore) MergeNoteNode(ctx context.Context, n model.NoteNode) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MERGE (n:Note {id: $id})
			SET n.title = $title, n.type = $type, n.tags = $tags, n.file_path = $filePath,
			    n.url = $url, n.last_synced_at = $lastSyncedAt
		`, map[string]any{
			"id": n.ID, "title": n.Title, "type": n.NoteType, "tags": n.Tags,
			"filePath": n.FilePath, "url": n.SourceURL, "lastSyncedAt": n.LastSyncedAt.Format("2006-01-02T15:04:05Z"),
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("graphstore: merge note node %s: %w", n.ID, err)
	}
	return nil
}

// SyncNoteLinks replaces a Note's outgoing LINKS_TO edges with edges to
// targetIDs, creating placeholder Note nodes for unresolved targets.
func (s *Neo4jStore) SyncNoteLinks(ctx context.Context, sourceID string, targetIDs []string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `MATCH (n:Note {id: $id})-[r:LINKS_TO]->() DELETE r`, map[string]any{"id": sourceID}); err != nil {
			return nil, err
		}
		for _, target := range targetIDs {
			_, err := tx.Run(ctx, `
				MATCH (source:Note {id: $sourceId})
				MERGE (target:Note {id: $targetId})
				MERGE (source)-[:LINKS_TO]->(target)
			`, map[string]any{"sourceId": sourceID, "targetId": target})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("graphstore: sync note links for %s: %w", sourceID, err)
	}
	return nil
}

// LinkContentToNoteByPath MERGEs a REPRESENTS edge between a Content
// node and a Note node sharing file_path.
func (s *Neo4jStore) LinkContentToNoteByPath(ctx context.Context, filePath string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		r, err := tx.Run(ctx, `
			MATCH (c:Content {file_path: $filePath}), (n:Note {file_path: $filePath})
			MERGE (c)-[:REPRESENTS]->(n)
			RETURN count(c) AS matched
		`, map[string]any{"filePath": filePath})
		if err != nil {
			return int64(0), err
		}
		if r.Next(ctx) {
			matched, _ := r.Record().Get("matched")
			n, _ := matched.(int64)
			return n, r.Err()
		}
		return int64(0), r.Err()
	})
	if err != nil {
		return fmt.Errorf("graphstore: link content to note by path %s: %w", filePath, err)
	}
	if matched, _ := result.(int64); matched == 0 {
		log.Debug("link_content_to_note_by_path: no Content/Note pair sharing %s", filePath)
	}
	return nil
}

var _ Store = (*Neo4jStore)(nil)
