// Package executor implements the Workflow Executor (§4.11): the entry
// point that turns a `{workflow_id, input_data}` request into a running
// session, owns the in-memory table of live orchestrator tasks, and
// reconciles their completion back into the Progress Store, SSE
// Broadcaster, and Artifact Store.
package executor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// handle is the executor's bookkeeping for one live session.
type handle struct {
	cancel     context.CancelFunc
	workflowID string
	startedAt  time.Time
	done       chan struct{}
}

// newSessionID mints a sortable, collision-resistant session id:
// timestamp + short random suffix (§4.11 step 1).
func newSessionID() string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return time.Now().UTC().Format("20060102150405") + "_" + hex.EncodeToString(buf[:])
}
