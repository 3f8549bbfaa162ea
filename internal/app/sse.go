package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// eventStream writes Server-Sent Events. The response is committed on the
// first send, so errors found before that can still be plain JSON.
type eventStream struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newEventStream(w http.ResponseWriter) *eventStream {
	return &eventStream{w: w, rc: http.NewResponseController(w)}
}

func (e *eventStream) start() {
	if e.started {
		return
	}
	e.started = true
	header := e.w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	// Chat runs outlive the server write timeout.
	_ = e.rc.SetWriteDeadline(time.Time{})
	e.w.WriteHeader(http.StatusOK)
}

func (e *eventStream) send(event string, payload any) error {
	e.start()
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return e.rc.Flush()
}
