package core

import (
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"
)

// Accumulator builds the full response text for one turn from the chunks it
// observes, in arrival order, and captures the most recent non-empty
// continuation token. Completion is signaled by exactly one done chunk;
// anything observed after that is a protocol violation and is dropped.
type Accumulator struct {
	full   strings.Builder
	token  json.RawMessage
	done   bool
	logger *logrus.Logger
}

func NewAccumulator(logger *logrus.Logger) *Accumulator {
	return &Accumulator{logger: logger}
}

func (a *Accumulator) Observe(chunk Chunk) {
	if a.done {
		a.logger.Warn("chunk observed after completion, ignoring")
		return
	}
	a.full.WriteString(chunk.Text)
	if len(chunk.Token) > 0 {
		a.token = chunk.Token
	}
	if chunk.Done {
		a.done = true
	}
}

// Done reports whether the terminal chunk has been observed.
func (a *Accumulator) Done() bool {
	return a.done
}

// Finalize returns the accumulated text and captured token. It has no side
// effects and may be called repeatedly.
func (a *Accumulator) Finalize() (string, json.RawMessage) {
	return a.full.String(), a.token
}
