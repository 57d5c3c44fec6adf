// Package progress defines the message shapes workers, the manager, and
// external collaborators exchange: phase/progress reports and the shutdown
// control protocol.
package progress

// Phase names one step of the worker state machine a Progress message
// reports against.
type Phase string

const (
	PhaseCheckingForUpdate Phase = "checking_for_update"
	PhaseFileImport        Phase = "file_import"
)

// Progress is one `{starting, <phase>, <cc>[, progress, K]}` report. Pct is
// meaningful only when Phase == PhaseFileImport; Complete marks the
// terminal pulse of that phase.
type Progress struct {
	Country  string
	Phase    Phase
	Pct      int // 1..100, valid only when Phase == PhaseFileImport
	Complete bool
	// CorrelationID ties every report from one manager run together, so a
	// sink fed by several overlapping runs can still group them.
	CorrelationID string
}

// ControlKind enumerates the shutdown control messages the manager sends to
// a worker.
type ControlKind int

const (
	ControlTerminate ControlKind = iota
)

// Control is a `{cmd, terminate}` message.
type Control struct {
	Kind ControlKind
}

// ControlAck is a `{cmd_response, from, terminate, goodbye, reason,
// payload}` reply: From identifies the acknowledging worker/manager. A
// worker's clean acknowledgment has an empty Reason; the manager's own reply
// carries "goodbye", or "timeout" when some worker did not acknowledge.
type ControlAck struct {
	From   string
	Reason string
}
