// Package concept implements the canonicalization and deduplication
// rules of spec.md §4.8: a concept's graph-store merge key is derived
// purely from its name, and batch reconciliation picks a single winner
// among duplicate nodes. Reconcile only returns that plan (winner and
// loser IDs); it does not redirect edges or delete nodes in any store.
package concept

import (
	"regexp"
	"sort"
	"strings"
)

var parenAliasPattern = regexp.MustCompile(`\(([^)]+)\)`)
var whitespacePattern = regexp.MustCompile(`\s+`)

// CanonicalName lowercases raw, strips any parenthesized alias, and
// collapses whitespace. It is the dedup key used by the graph store's
// MERGE-by-canonical-name semantics (spec.md invariant 5).
func CanonicalName(raw string) string {
	stripped := parenAliasPattern.ReplaceAllString(raw, "")
	stripped = strings.TrimSpace(stripped)
	stripped = whitespacePattern.ReplaceAllString(stripped, " ")
	return strings.ToLower(stripped)
}

// ExtractAliases returns the parenthesized tokens in raw as additional
// names, e.g. "Behavior Cloning (BC)" -> ["BC"].
func ExtractAliases(raw string) []string {
	matches := parenAliasPattern.FindAllStringSubmatch(raw, -1)
	aliases := make([]string, 0, len(matches))
	for _, m := range matches {
		alias := strings.TrimSpace(m[1])
		if alias != "" {
			aliases = append(aliases, alias)
		}
	}
	return aliases
}

// MergeResult is the product of combining two concept records that
// share a canonical name.
type MergeResult struct {
	Definition string
	Aliases    []string
}

// Merge picks the longer definition and unions aliases (deduplicated,
// order-preserving by first appearance), per spec.md §4.4's
// create_concept_node merge policy.
func Merge(defA, defB string, aliasesA, aliasesB []string) MergeResult {
	winner := defA
	if len(defB) > len(defA) {
		winner = defB
	}

	seen := make(map[string]bool)
	merged := make([]string, 0, len(aliasesA)+len(aliasesB))
	for _, a := range append(append([]string{}, aliasesA...), aliasesB...) {
		key := strings.ToLower(a)
		if !seen[key] {
			seen[key] = true
			merged = append(merged, a)
		}
	}
	return MergeResult{Definition: winner, Aliases: merged}
}

// Node is the minimal shape Reconcile needs from a graph-stored concept.
type Node struct {
	ID            string
	CanonicalName string
	Definition    string
	Aliases       []string
}

// ReconcilePlan describes how to collapse duplicate nodes: which node
// wins per canonical name, and which losing IDs should be deleted
// after their edges are redirected to the winner.
type ReconcilePlan struct {
	Winner MergeResult
	WinnerID string
	LoserIDs []string
}

// Reconcile groups nodes by canonical name and, for any group with more
// than one member, picks the node with the longest definition as the
// winner (spec.md §4.8's batch deduplication pass). Groups of size 1
// are omitted from the result.
func Reconcile(nodes []Node) map[string]ReconcilePlan {
	groups := make(map[string][]Node)
	for _, n := range nodes {
		groups[n.CanonicalName] = append(groups[n.CanonicalName], n)
	}

	plans := make(map[string]ReconcilePlan)
	for canonical, group := range groups {
		if len(group) < 2 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			return len(group[i].Definition) > len(group[j].Definition)
		})
		winner := group[0]
		var aliases []string
		loserIDs := make([]string, 0, len(group)-1)
		for _, n := range group[1:] {
			m := Merge(winner.Definition, n.Definition, append(winner.Aliases, aliases...), n.Aliases)
			winner.Definition = m.Definition
			aliases = m.Aliases
			loserIDs = append(loserIDs, n.ID)
		}
		plans[canonical] = ReconcilePlan{
			Winner:   MergeResult{Definition: winner.Definition, Aliases: aliases},
			WinnerID: winner.ID,
			LoserIDs: loserIDs,
		}
	}
	return plans
}
