package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/kirogate/kirogate/internal/apperr"
	"github.com/kirogate/kirogate/internal/gateway"
	"github.com/kirogate/kirogate/internal/logging"
	"github.com/kirogate/kirogate/internal/translator"
	"github.com/kirogate/kirogate/internal/translator/claude"
	"github.com/kirogate/kirogate/internal/translator/openai"
)

// maxBodySize bounds chat request bodies (images arrive base64-inline).
const maxBodySize = 32 << 20

// Chat serves both chat dialects over one orchestrator.
type Chat struct {
	orch   *gateway.Orchestrator
	openai translator.Codec
	claude translator.Codec
}

func NewChat(orch *gateway.Orchestrator) *Chat {
	return &Chat{orch: orch, openai: openai.New(), claude: claude.New()}
}

// Completions handles POST /v1/chat/completions.
func (h *Chat) Completions(c *gin.Context) {
	h.handle(c, h.openai)
}

// Messages handles POST /v1/messages.
func (h *Chat) Messages(c *gin.Context) {
	h.handle(c, h.claude)
}

func (h *Chat) handle(c *gin.Context, codec translator.Codec) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodySize+1))
	if err != nil {
		writeError(c, codec.Dialect(), apperr.Validation("read request body: %v", err))
		return
	}
	if len(raw) > maxBodySize {
		writeError(c, codec.Dialect(), apperr.Validation("request body exceeds %d bytes", maxBodySize))
		return
	}

	// Surface the model to logging/metrics middleware before any work.
	if model := gjson.GetBytes(raw, "model").String(); model != "" {
		c.Set("model", model)
	}
	if log.IsLevelEnabled(log.DebugLevel) {
		log.WithField("request_id", c.GetString("request_id")).
			Debugf("chat request: %s", logging.RedactJSON(raw))
	}

	ctx := c.Request.Context()
	if !gjson.GetBytes(raw, "stream").Bool() {
		body, res, err := h.orch.Complete(ctx, codec, raw)
		if err != nil {
			writeError(c, codec.Dialect(), err)
			return
		}
		logExchange(c, res)
		c.Data(http.StatusOK, "application/json", body)
		return
	}

	sink := newSSEWriter(c.Writer)
	res, err := h.orch.Stream(ctx, codec, raw, sink)
	if err != nil {
		// Failed before the first byte; a plain error response is still
		// possible.
		writeError(c, codec.Dialect(), err)
		return
	}
	logExchange(c, res)
}

func logExchange(c *gin.Context, res *gateway.Result) {
	if res == nil {
		return
	}
	log.WithFields(log.Fields{
		"model":         res.Model,
		"stream":        res.Stream,
		"input_tokens":  res.Usage.InputTokens,
		"output_tokens": res.Usage.OutputTokens,
		"request_id":    c.GetString("request_id"),
	}).Debug("chat exchange complete")
}
