package kiro

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"testing"
)

// encodeFrame builds one AWS event stream message with an :event-type
// header, matching the upstream wire framing.
func encodeFrame(t *testing.T, eventType string, payload []byte) []byte {
	t.Helper()

	var headers bytes.Buffer
	name := []byte(":event-type")
	headers.WriteByte(byte(len(name)))
	headers.Write(name)
	headers.WriteByte(7) // string value type
	var vlen [2]byte
	binary.BigEndian.PutUint16(vlen[:], uint16(len(eventType)))
	headers.Write(vlen[:])
	headers.WriteString(eventType)

	totalLen := 8 + 4 + headers.Len() + len(payload) + 4

	var buf bytes.Buffer
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], uint32(totalLen))
	buf.Write(u32[:])
	binary.BigEndian.PutUint32(u32[:], uint32(headers.Len()))
	buf.Write(u32[:])
	binary.BigEndian.PutUint32(u32[:], crc32.ChecksumIEEE(buf.Bytes()))
	buf.Write(u32[:])
	buf.Write(headers.Bytes())
	buf.Write(payload)
	binary.BigEndian.PutUint32(u32[:], crc32.ChecksumIEEE(buf.Bytes()))
	buf.Write(u32[:])
	return buf.Bytes()
}

func TestFrameDecoder_RoundTrip(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(encodeFrame(t, "assistantResponseEvent", []byte(`{"content":"hi"}`)))
	stream.Write(encodeFrame(t, "supplementaryWebLinksEvent", []byte(`{"inputTokens":3,"outputTokens":1}`)))

	dec := newFrameDecoder(&stream)

	fr, err := dec.next()
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if fr.EventType != "assistantResponseEvent" || string(fr.Payload) != `{"content":"hi"}` {
		t.Errorf("frame = %q %q", fr.EventType, fr.Payload)
	}

	fr, err = dec.next()
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if fr.EventType != "supplementaryWebLinksEvent" {
		t.Errorf("event type = %q", fr.EventType)
	}

	if _, err = dec.next(); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestFrameDecoder_Truncated(t *testing.T) {
	full := encodeFrame(t, "assistantResponseEvent", []byte(`{"content":"hi"}`))
	dec := newFrameDecoder(bytes.NewReader(full[:len(full)-6]))
	if _, err := dec.next(); err == nil || err == io.EOF {
		t.Errorf("truncated frame should fail, got %v", err)
	}
}

func TestFrameDecoder_BogusLength(t *testing.T) {
	bad := make([]byte, 8)
	binary.BigEndian.PutUint32(bad[0:4], 4) // smaller than the minimum frame
	dec := newFrameDecoder(bytes.NewReader(bad))
	if _, err := dec.next(); err == nil {
		t.Error("bogus length should fail")
	}
}

func TestEventDecoder_TextAndUsage(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(encodeFrame(t, "assistantResponseEvent", []byte(`{"content":"hel"}`)))
	stream.Write(encodeFrame(t, "assistantResponseEvent", []byte(`{"assistantResponseEvent":{"content":"lo"}}`)))
	stream.Write(encodeFrame(t, "supplementaryWebLinksEvent", []byte(`{"inputTokens":12,"outputTokens":5}`)))

	dec := newEventDecoder(&stream)
	var text string
	for {
		deltas, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		for _, d := range deltas {
			text += d.Text
		}
	}
	if text != "hello" {
		t.Errorf("text = %q", text)
	}
	usage, ok := dec.Usage()
	if !ok || usage.InputTokens != 12 || usage.OutputTokens != 5 {
		t.Errorf("usage = %+v ok=%v", usage, ok)
	}
}

func TestEventDecoder_ToolUseFragments(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(encodeFrame(t, "toolUseEvent", []byte(`{"toolUseId":"tu_1","name":"get_weather","input":"{\"city\":"}`)))
	stream.Write(encodeFrame(t, "toolUseEvent", []byte(`{"toolUseId":"tu_1","name":"get_weather","input":"\"Oslo\"}","stop":true}`)))

	dec := newEventDecoder(&stream)
	var starts int
	var input string
	for {
		deltas, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		for _, d := range deltas {
			if tu := d.ToolUse; tu != nil {
				if tu.Start {
					starts++
					if tu.ID != "tu_1" || tu.Name != "get_weather" {
						t.Errorf("start = %+v", tu)
					}
				}
				input += tu.PartialInput
			}
		}
	}
	if starts != 1 {
		t.Errorf("starts = %d, fragments must not re-announce the tool", starts)
	}
	if input != `{"city":"Oslo"}` {
		t.Errorf("assembled input = %q", input)
	}
}

func TestParseResponse(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(encodeFrame(t, "assistantResponseEvent", []byte(`{"content":"checking"}`)))
	stream.Write(encodeFrame(t, "assistantResponseEvent",
		[]byte(`{"toolUses":[{"toolUseId":"tu_2","name":"lookup","input":{"q":"go"}}]}`)))
	stream.Write(encodeFrame(t, "supplementaryWebLinksEvent", []byte(`{"inputTokens":7,"outputTokens":9}`)))

	content, tools, usage, sawUsage, err := parseResponse(&stream)
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if content != "checking" {
		t.Errorf("content = %q", content)
	}
	if len(tools) != 1 || tools[0].ID != "tu_2" || tools[0].Name != "lookup" {
		t.Fatalf("tools = %+v", tools)
	}
	if tools[0].Input["q"] != "go" {
		t.Errorf("tool input = %+v", tools[0].Input)
	}
	if !sawUsage || usage.InputTokens != 7 || usage.OutputTokens != 9 {
		t.Errorf("usage = %+v sawUsage=%v", usage, sawUsage)
	}
}

func TestParseResponse_DuplicateToolUses(t *testing.T) {
	payload := []byte(`{"toolUses":[{"toolUseId":"tu_3","name":"lookup","input":{}}]}`)
	var stream bytes.Buffer
	stream.Write(encodeFrame(t, "assistantResponseEvent", payload))
	stream.Write(encodeFrame(t, "assistantResponseEvent", payload))

	_, tools, _, _, err := parseResponse(&stream)
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if len(tools) != 1 {
		t.Errorf("got %d tool uses, duplicates must collapse", len(tools))
	}
}

func TestParseResponse_Empty(t *testing.T) {
	content, tools, _, sawUsage, err := parseResponse(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if content != "" || len(tools) != 0 || sawUsage {
		t.Errorf("content=%q tools=%v sawUsage=%v", content, tools, sawUsage)
	}
}
