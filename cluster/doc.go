// Package cluster groups a user's documents by vocabulary overlap.
//
// The built-in algorithm compares term sets (stems longer than three runes)
// with Jaccard similarity. Documents are visited in ascending ID order and
// each unclustered document seeds a cluster that absorbs every remaining
// document whose similarity with the seed exceeds 0.25. Clusters with fewer
// than two members are dropped.
//
// An external process can be plugged in through CommandClusterer. Any
// failure of that process falls back to the built-in algorithm. Results
// replace the user's stored clusters in a single metadata transaction, and
// at most one run per user is in flight at a time.
package cluster
