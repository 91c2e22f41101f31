// Package discovery ranks the operations of registered services for a
// free-text query.
//
// Two signals are combined:
//
//   - the keyword score of the operation itself, from the bleve index in
//     package search, normalized to [0, 1] against the best hit;
//   - the similarity of the owning service's description to the query,
//     from the registry's vector search.
//
// The hybrid score is Alpha*keyword + (1-Alpha)*similarity. Alpha = 1
// ranks by keywords only. When the registry cannot be queried, keyword
// scores are used as they are and the results are marked ScoreKeyword.
//
// Results are ordered by score descending, then by service and operation
// name, so equal scores always come back in the same order.
package discovery
