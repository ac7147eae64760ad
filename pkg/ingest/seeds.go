package ingest

import (
	"fmt"
	"sort"

	"github.com/seekerhq/seeker/pkg/models"
)

// Query variant templates applied to the base topic when seeding.
var seedTemplates = []string{
	"%s",
	"%s problems",
	"%s issues",
	"%s hate",
	"%s frustrating",
	"%s alternative",
	"%s vs",
	"switching from %s",
	"%s pricing complaints",
}

const maxEntityFollowups = 3

// SeedQueries generates the semantic query variants for a topic, plus
// follow-ups derived from the current top entities.
func SeedQueries(topic string, stats *models.SessionStats) []string {
	queries := make([]string, 0, len(seedTemplates)+maxEntityFollowups)
	for _, tmpl := range seedTemplates {
		queries = append(queries, fmt.Sprintf(tmpl, topic))
	}
	for _, entity := range topEntities(stats, maxEntityFollowups) {
		queries = append(queries, entity+" problems")
	}
	return queries
}

// topEntities returns up to n entities by descending count, ties broken
// alphabetically for determinism.
func topEntities(stats *models.SessionStats, n int) []string {
	if stats == nil || len(stats.ByEntity) == 0 {
		return nil
	}
	entities := make([]string, 0, len(stats.ByEntity))
	for e := range stats.ByEntity {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool {
		if stats.ByEntity[entities[i]] != stats.ByEntity[entities[j]] {
			return stats.ByEntity[entities[i]] > stats.ByEntity[entities[j]]
		}
		return entities[i] < entities[j]
	})
	if len(entities) > n {
		entities = entities[:n]
	}
	return entities
}
