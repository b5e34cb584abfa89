package logging

import (
	"encoding/json"
	"testing"
)

func TestRedactJSON(t *testing.T) {
	in := []byte(`{"model":"auto","api_key":"sk-live","nested":{"refresh_token":"abc","text":"hi"},"list":[{"password":"x"}]}`)
	out := RedactJSON(in)

	var v map[string]any
	if err := json.Unmarshal(out, &v); err != nil {
		t.Fatalf("unmarshal redacted: %v", err)
	}
	if v["api_key"] != "[REDACTED]" {
		t.Errorf("api_key = %v, want redacted", v["api_key"])
	}
	nested := v["nested"].(map[string]any)
	if nested["refresh_token"] != "[REDACTED]" {
		t.Errorf("refresh_token = %v, want redacted", nested["refresh_token"])
	}
	if nested["text"] != "hi" {
		t.Errorf("text = %v, want untouched", nested["text"])
	}
	item := v["list"].([]any)[0].(map[string]any)
	if item["password"] != "[REDACTED]" {
		t.Errorf("password = %v, want redacted", item["password"])
	}
	if v["model"] != "auto" {
		t.Errorf("model = %v, want untouched", v["model"])
	}
}

func TestRedactJSON_PassThrough(t *testing.T) {
	for _, in := range []string{"", "not json", "{broken"} {
		if got := string(RedactJSON([]byte(in))); got != in {
			t.Errorf("RedactJSON(%q) = %q, want unchanged", in, got)
		}
	}
}
