// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ingestion

import (
	"context"
	"log/slog"

	"github.com/poiesic/querysafe/chunker"
	"github.com/poiesic/querysafe/core"
	"github.com/poiesic/querysafe/index"
	"github.com/poiesic/querysafe/snapshot"
)

// processor is one stage of a run. Stages execute in order and hand their
// output to the next stage through the run.
type processor interface {
	// name identifies the stage in logs.
	name() string

	// process advances r. An error aborts the run.
	process(ctx context.Context, r *run) error
}

// run is the working state of one ingestion run. It is private to the
// goroutine executing the run.
type run struct {
	tenant     core.TenantID
	generation uint64
	logger     *slog.Logger

	documents []*core.Document
	units     []core.ContentUnit
	failed    []string // names of documents that yielded nothing
	chunks    []core.Chunk
	vectors   [][]float32
	index     *index.Flat
	snapshot  *snapshot.Snapshot
}

// texts returns the chunk texts in position order.
func (r *run) texts() []string {
	return chunker.Texts(r.chunks)
}
