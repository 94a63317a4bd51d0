// Package reconcile retires stored documents whose source URLs are no longer
// published upstream.
//
// A Reconciler diffs a complete list of current URLs against the repository.
// Documents missing from the list have their chunks removed from the vector
// index before their rows are deleted. When the index refuses the deletion
// the rows are kept and marked orphaned instead, so a row never disappears
// while its vectors may still exist.
package reconcile
