// Package skiplist implements the ordered member index behind sorted sets.
// Nodes are ordered by score and, among equal scores, by the lexicographic
// order of the member bytes. Each forward link carries a span counting the
// nodes it skips, which turns rank lookups into a single descent, and level
// zero is additionally linked backwards for tail-to-head walks.
//
// Levels are drawn geometrically: each node gains another level with
// probability 1/4, capped at 32.
package skiplist
