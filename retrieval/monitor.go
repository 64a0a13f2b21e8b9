package retrieval

import (
	"github.com/poiesic/querysafe/core"
	"github.com/poiesic/querysafe/index"
)

// Monitor provides hooks to observe a retrieval.
type Monitor interface {
	Start(tenant core.TenantID, query string)
	SnapshotTaken(generation uint64, chunks int)
	AfterSearch(hits []index.Hit)
	Dropped(position int)
	Finish(result *Result)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ core.TenantID, _ string) {}
func (n *noopMonitor) SnapshotTaken(_ uint64, _ int)   {}
func (n *noopMonitor) AfterSearch(_ []index.Hit)       {}
func (n *noopMonitor) Dropped(_ int)                   {}
func (n *noopMonitor) Finish(_ *Result)                {}
