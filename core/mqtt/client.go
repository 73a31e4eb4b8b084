// Package mqtt defines the broker facing contract of the dispatcher: the
// topics results are published on and the run requests a serving process
// accepts.
package mqtt

import (
	"fmt"
	"strings"
)

// DefaultPrefix is the topic root used when none is configured.
const DefaultPrefix = "iesdispatch"

// RunRequest asks a serving process to dispatch a case. Case is resolved by
// the server, typically as a case file name.
type RunRequest struct {
	RequestID string `json:"request_id"`
	Case      string `json:"case"`
}

// Validate checks the request carries what the server needs.
func (r RunRequest) Validate() error {
	if r.RequestID == "" {
		return fmt.Errorf("%w: request_id is required", ErrInvalidRequest)
	}
	if r.Case == "" || strings.ContainsAny(r.Case, "/\\") {
		return fmt.Errorf("%w: case %q must be a bare name", ErrInvalidRequest, r.Case)
	}
	return nil
}

// RunReply answers a RunRequest once the run finished.
type RunReply struct {
	RequestID string  `json:"request_id"`
	RunID     string  `json:"run_id,omitempty"`
	Status    string  `json:"status"`
	Objective float64 `json:"objective"`
	Error     string  `json:"error,omitempty"`
}

// RequestHandler is called for every valid run request.
type RequestHandler func(RunRequest)

// Topics derives topic names from a prefix.
type Topics struct {
	Prefix string
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// Requests is the topic run requests are received on.
func (t Topics) Requests() string { return t.root() + "/requests" }

// Replies is the topic run replies are published on.
func (t Topics) Replies() string { return t.root() + "/replies" }

// Run is the topic run records of a case are published on.
func (t Topics) Run(caseName string) string { return t.root() + "/runs/" + caseName }

// Window is the topic window state transitions of a case are published on.
func (t Topics) Window(caseName string) string { return t.root() + "/windows/" + caseName }

// Schedule is the topic one Activity Matrix vector is published on.
func (t Topics) Schedule(caseName, component, resource, tracker string) string {
	return strings.Join([]string{t.root(), "schedule", caseName, component, resource, tracker}, "/")
}
