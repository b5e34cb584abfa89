// Package kiro implements the upstream CodeWhisperer/Amazon Q client: request
// payload construction, AWS event stream decoding, token storage and refresh.
package kiro

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/kirogate/kirogate/internal/translator"
)

// maxFrameSize bounds a single event stream message. Frames above this are
// treated as a corrupt stream.
const maxFrameSize = 16 * 1024 * 1024

// frame is one decoded AWS event stream message.
type frame struct {
	EventType string
	Payload   []byte
}

// frameDecoder reads AWS event stream binary framing: a 4-byte total length,
// 4-byte headers length, 4-byte prelude CRC, headers, JSON payload, and a
// 4-byte message CRC. CRCs are not verified; the transport already
// checksums, and the upstream service is the only producer.
type frameDecoder struct {
	r *bufio.Reader
}

func newFrameDecoder(r io.Reader) *frameDecoder {
	return &frameDecoder{r: bufio.NewReader(r)}
}

// next returns the following frame, or io.EOF at end of stream.
func (d *frameDecoder) next() (*frame, error) {
	prelude := make([]byte, 8)
	if _, err := io.ReadFull(d.r, prelude); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame prelude: %w", err)
	}
	totalLen := binary.BigEndian.Uint32(prelude[0:4])
	headersLen := binary.BigEndian.Uint32(prelude[4:8])
	if totalLen < 16 || totalLen > maxFrameSize || headersLen > totalLen-16 {
		return nil, fmt.Errorf("invalid frame lengths: total=%d headers=%d", totalLen, headersLen)
	}

	rest := make([]byte, totalLen-8)
	if _, err := io.ReadFull(d.r, rest); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}

	// rest = prelude CRC (4) + headers + payload + message CRC (4).
	headers := rest[4 : 4+headersLen]
	payload := rest[4+headersLen : len(rest)-4]
	return &frame{EventType: eventTypeHeader(headers), Payload: payload}, nil
}

// eventTypeHeader walks the header block looking for the :event-type string
// header (value type 7, 2-byte length prefix).
func eventTypeHeader(headers []byte) string {
	offset := 0
	for offset < len(headers) {
		nameLen := int(headers[offset])
		offset++
		if offset+nameLen > len(headers) {
			return ""
		}
		name := string(headers[offset : offset+nameLen])
		offset += nameLen

		if offset >= len(headers) {
			return ""
		}
		valueType := headers[offset]
		offset++
		if valueType != 7 {
			// Non-string header; the chat stream only carries strings.
			return ""
		}
		if offset+2 > len(headers) {
			return ""
		}
		valueLen := int(binary.BigEndian.Uint16(headers[offset : offset+2]))
		offset += 2
		if offset+valueLen > len(headers) {
			return ""
		}
		value := string(headers[offset : offset+valueLen])
		offset += valueLen

		if name == ":event-type" {
			return value
		}
	}
	return ""
}

// eventDecoder turns frames into canonical stream deltas. Tool invocations
// arrive either complete (inside assistantResponseEvent.toolUses) or as
// buffered toolUseEvent fragments; both paths dedupe on toolUseId.
type eventDecoder struct {
	frames *frameDecoder

	seenTools map[string]bool
	openTool  string
	usage     translator.Usage
	sawUsage  bool
}

func newEventDecoder(r io.Reader) *eventDecoder {
	return &eventDecoder{
		frames:    newFrameDecoder(r),
		seenTools: map[string]bool{},
	}
}

// Next returns the deltas carried by the following frame. A nil slice with a
// nil error means the frame carried nothing for us (e.g. a usage event, which
// is folded into Usage()); io.EOF marks a clean end of stream.
func (d *eventDecoder) Next() ([]translator.Delta, error) {
	for {
		fr, err := d.frames.next()
		if err != nil {
			return nil, err
		}
		deltas := d.decode(fr)
		if len(deltas) > 0 {
			return deltas, nil
		}
	}
}

// Usage reports the token counters seen on the stream, if any.
func (d *eventDecoder) Usage() (translator.Usage, bool) {
	return d.usage, d.sawUsage
}

func (d *eventDecoder) decode(fr *frame) []translator.Delta {
	root := gjson.ParseBytes(fr.Payload)
	// Payloads nest the event under its type key in some service versions
	// and inline it in others; accept both.
	if nested := root.Get(fr.EventType); nested.IsObject() {
		root = nested
	}

	switch fr.EventType {
	case "assistantResponseEvent":
		return d.decodeAssistant(root)
	case "toolUseEvent":
		return d.decodeToolUse(root)
	case "supplementaryWebLinksEvent":
		d.decodeUsage(root)
		return nil
	default:
		d.decodeUsage(root)
		return nil
	}
}

func (d *eventDecoder) decodeAssistant(ev gjson.Result) []translator.Delta {
	var deltas []translator.Delta
	if text := ev.Get("content").String(); text != "" {
		deltas = append(deltas, translator.Delta{Text: text})
	}
	for _, tu := range ev.Get("toolUses").Array() {
		id := tu.Get("toolUseId").String()
		if id == "" || d.seenTools[id] {
			continue
		}
		d.seenTools[id] = true
		input := tu.Get("input").Raw
		if input == "" {
			input = "{}"
		}
		deltas = append(deltas,
			translator.Delta{ToolUse: &translator.ToolUseDelta{
				Start: true, ID: id, Name: tu.Get("name").String(),
			}},
			translator.Delta{ToolUse: &translator.ToolUseDelta{PartialInput: input}},
		)
	}
	return deltas
}

func (d *eventDecoder) decodeToolUse(ev gjson.Result) []translator.Delta {
	id := ev.Get("toolUseId").String()
	name := ev.Get("name").String()

	var deltas []translator.Delta
	if id != "" && name != "" && d.openTool != id {
		if d.seenTools[id] {
			return nil
		}
		d.seenTools[id] = true
		d.openTool = id
		deltas = append(deltas, translator.Delta{ToolUse: &translator.ToolUseDelta{
			Start: true, ID: id, Name: name,
		}})
	}

	// Input arrives as a string fragment while streaming, or as a complete
	// object on single-shot events.
	switch input := ev.Get("input"); input.Type {
	case gjson.String:
		if frag := input.String(); frag != "" && d.openTool != "" {
			deltas = append(deltas, translator.Delta{ToolUse: &translator.ToolUseDelta{
				PartialInput: frag,
			}})
		}
	case gjson.JSON:
		if input.IsObject() && d.openTool != "" {
			deltas = append(deltas, translator.Delta{ToolUse: &translator.ToolUseDelta{
				PartialInput: input.Raw,
			}})
		}
	}

	if ev.Get("stop").Bool() {
		d.openTool = ""
	}
	return deltas
}

func (d *eventDecoder) decodeUsage(ev gjson.Result) {
	in := ev.Get("inputTokens")
	out := ev.Get("outputTokens")
	if !in.Exists() && !out.Exists() {
		return
	}
	d.sawUsage = true
	if in.Exists() {
		d.usage.InputTokens = in.Int()
	}
	if out.Exists() {
		d.usage.OutputTokens = out.Int()
	}
}

// parseResponse drains a buffered (non-streaming) event stream body into a
// canonical response. Tool inputs buffered as fragments are assembled and
// decoded at the end.
func parseResponse(body io.Reader) (content string, tools []translator.ToolUse, usage translator.Usage, sawUsage bool, err error) {
	dec := newEventDecoder(body)

	var text strings.Builder
	var current *translator.ToolUse
	var inputBuf strings.Builder

	flush := func() {
		if current == nil {
			return
		}
		current.Input = map[string]any{}
		if inputBuf.Len() > 0 {
			if err := json.Unmarshal([]byte(inputBuf.String()), &current.Input); err != nil {
				log.Debugf("kiro: discarding unparseable tool input for %s: %v", current.ID, err)
			}
		}
		tools = append(tools, *current)
		current = nil
		inputBuf.Reset()
	}

	for {
		deltas, derr := dec.Next()
		if derr == io.EOF {
			break
		}
		if derr != nil {
			err = derr
			return
		}
		for _, d := range deltas {
			if d.Text != "" {
				text.WriteString(d.Text)
			}
			if tu := d.ToolUse; tu != nil {
				if tu.Start {
					flush()
					current = &translator.ToolUse{ID: tu.ID, Name: tu.Name}
				}
				if tu.PartialInput != "" {
					inputBuf.WriteString(tu.PartialInput)
				}
			}
		}
	}
	flush()

	content = text.String()
	usage, sawUsage = dec.Usage()
	return
}
