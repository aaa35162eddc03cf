package core

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// StreamEvent is one outbound event forwarded to the caller during a
// streamed turn.
type StreamEvent struct {
	Chunk string `json:"chunk"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// EventSink delivers stream events to the caller. Send must block until the
// event is handed to the transport so chunk emission stays flow-controlled.
type EventSink interface {
	Send(event StreamEvent) error
}

// ErrClientGone means the caller stopped consuming the stream; the upstream
// generation is abandoned and nothing is persisted.
var ErrClientGone = errors.New("client stopped consuming stream")

// Relay forwards each chunk of a stream to the sink in arrival order while
// feeding the accumulator. It returns once the terminal chunk has been
// emitted, leaving persistence to the caller before the stream closes.
type Relay struct {
	sink   EventSink
	logger *logrus.Logger
}

func NewRelay(sink EventSink, logger *logrus.Logger) *Relay {
	return &Relay{sink: sink, logger: logger}
}

// Run consumes the stream until the done chunk. A transport failure is turned
// into one terminal in-band error event; a sink failure aborts the upstream
// read immediately.
func (r *Relay) Run(stream *ChunkStream, acc *Accumulator) error {
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			if acc.Done() {
				return nil
			}
			// Backend closed the stream without a done marker.
			err = fmt.Errorf("%w: stream ended before completion", ErrBackendProtocol)
		}
		if err != nil {
			r.sendError("generation stream failed")
			return err
		}

		acc.Observe(chunk)
		if sendErr := r.sink.Send(StreamEvent{Chunk: chunk.Text, Done: chunk.Done}); sendErr != nil {
			return fmt.Errorf("%w: %v", ErrClientGone, sendErr)
		}
		if chunk.Done {
			return nil
		}
	}
}

func (r *Relay) sendError(message string) {
	if err := r.sink.Send(StreamEvent{Error: message, Done: true}); err != nil {
		r.logger.WithError(err).Debug("could not deliver terminal error event")
	}
}
