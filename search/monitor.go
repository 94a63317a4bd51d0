package search

import (
	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/vector"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string)
	AfterVectorSearch(hits []vector.SearchHit)
	DocumentMissing(chunkID, documentID string)
	AfterDocumentLookup(docs map[string]*core.Document)
	Finish(results []*Result)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                                  {}
func (n *noopMonitor) AfterVectorSearch(_ []vector.SearchHit)          {}
func (n *noopMonitor) DocumentMissing(_, _ string)                     {}
func (n *noopMonitor) AfterDocumentLookup(_ map[string]*core.Document) {}
func (n *noopMonitor) Finish(_ []*Result)                              {}
