package relay

import "encoding/json"

// EventType identifies a response event variant.
type EventType string

const (
	EventText              EventType = "text"
	EventDone              EventType = "done"
	EventTranscription     EventType = "transcription"
	EventStreamInterrupted EventType = "stream_interrupted"
	EventFallbackNotice    EventType = "fallback_notice"
	EventError             EventType = "error"
)

// Event is one element of the uniform response stream every dispatcher
// produces. The set of variants is closed. A well-behaved call yields
// zero or more Text/Transcription/FallbackNotice events followed by
// exactly one terminal event: Done, or Error when nothing recoverable
// was produced.
//
// Events marshal to the wire shape the downstream HTTP layer forwards
// verbatim, e.g. {"type":"text","content":"..."}.
type Event interface {
	Type() EventType
}

// TextEvent carries one increment of assistant text.
type TextEvent struct {
	Content string
}

func (TextEvent) Type() EventType { return EventText }

func (e TextEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    EventType `json:"type"`
		Content string    `json:"content"`
	}{EventText, e.Content})
}

// DoneEvent terminates a successful (possibly truncated) stream.
type DoneEvent struct{}

func (DoneEvent) Type() EventType { return EventDone }

func (DoneEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type EventType `json:"type"`
	}{EventDone})
}

// TranscriptionEvent reports the speech-to-text result of the two-stage
// voice pipeline as soon as it is available.
type TranscriptionEvent struct {
	Text string
}

func (TranscriptionEvent) Type() EventType { return EventTranscription }

func (e TranscriptionEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type EventType `json:"type"`
		Text string    `json:"text"`
	}{EventTranscription, e.Text})
}

// StreamInterruptedEvent recovers a mid-stream failure as a truncated
// success once partial output has already been shown to the end user.
type StreamInterruptedEvent struct {
	Message       string
	PartialLength int
}

func (StreamInterruptedEvent) Type() EventType { return EventStreamInterrupted }

func (e StreamInterruptedEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type          EventType `json:"type"`
		Message       string    `json:"message"`
		PartialLength int       `json:"partial_content_length"`
	}{EventStreamInterrupted, e.Message, e.PartialLength})
}

// FallbackNoticeEvent tells the caller the configured provider was
// unusable and the system default answered instead.
type FallbackNoticeEvent struct {
	Reason string
}

func (FallbackNoticeEvent) Type() EventType { return EventFallbackNotice }

func (e FallbackNoticeEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   EventType `json:"type"`
		Reason string    `json:"reason"`
	}{EventFallbackNotice, e.Reason})
}

// ErrorEvent is the terminal event for a failed call. Dispatchers emit
// it only when no recoverable content was surfaced; the router decides
// whether it triggers the single fallback or propagates.
type ErrorEvent struct {
	Err *Error
}

func (ErrorEvent) Type() EventType { return EventError }

func (e ErrorEvent) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Message
	}
	return json.Marshal(struct {
		Type  EventType `json:"type"`
		Error string    `json:"error"`
	}{EventError, msg})
}
