package translator

// Event is one unit of encoded SSE output.
type Event struct {
	// Name is the SSE event name. Empty for dialects (OpenAI) that emit
	// bare data lines.
	Name string
	// Data is the encoded JSON payload. For a Done event the writer emits
	// the dialect's terminator instead of Data.
	Data []byte
	// Done marks the dialect's stream terminator (OpenAI "data: [DONE]").
	Done bool
}

// StreamTranslator converts canonical stream deltas into dialect SSE events.
// Implementations are single-use state machines: Next may be called any
// number of times, then exactly one of Finish or Fail, after which the
// translator must not be used again.
type StreamTranslator interface {
	// Next translates one upstream delta. It may emit zero or more events
	// (e.g. a tool_use start expands to block start + first input delta).
	Next(d Delta) []Event
	// Finish closes all open blocks and emits the dialect's terminal
	// framing with the final stop reason and usage. Calling Finish on a
	// translator that saw no deltas yields a valid empty completion.
	Finish(stop StopInfo) []Event
	// Fail closes the stream after an upstream error. Events already
	// emitted are not recalled; Fail appends the dialect's error framing
	// where one exists, or nothing.
	Fail(err error) []Event
}

// Codec binds one client dialect to the canonical model.
type Codec interface {
	Dialect() Dialect
	// EncodeRequest parses and validates a raw request body. Invalid
	// bodies return an error suitable for a 400.
	EncodeRequest(raw []byte) (*Request, error)
	// DecodeResponse renders a buffered canonical response as the
	// dialect's JSON body.
	DecodeResponse(resp *Response) ([]byte, error)
	// NewStream starts a streaming translation for one request. The id
	// and model are echoed into every frame that carries them.
	NewStream(id, model string, promptTokens int64) StreamTranslator
}
