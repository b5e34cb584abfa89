// Package gateway drives one chat exchange end to end: parse the dialect
// request, call the upstream, and translate the reply back, buffered or
// streamed. HTTP concerns stay in the api package; the orchestrator only
// sees codecs, the upstream interface, and an event sink.
package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/kirogate/kirogate/internal/apperr"
	"github.com/kirogate/kirogate/internal/kiro"
	"github.com/kirogate/kirogate/internal/translator"
)

// Upstream is the provider behind the gateway.
type Upstream interface {
	Send(ctx context.Context, req *translator.Request) (*translator.Response, error)
	SendStream(ctx context.Context, req *translator.Request) (<-chan translator.StreamItem, error)
}

// EventSink receives translated SSE events. Write returning an error aborts
// the stream (client went away).
type EventSink interface {
	Write(ev translator.Event) error
}

// Result summarizes a finished exchange for metrics and logging.
type Result struct {
	Model  string
	Usage  translator.Usage
	Stream bool
}

// defaultIdleTimeout bounds the gap between upstream chunks. A healthy
// stream ticks well under this; a stuck one gets cut.
const defaultIdleTimeout = 120 * time.Second

type Orchestrator struct {
	upstream    Upstream
	idleTimeout time.Duration
}

type Option func(*Orchestrator)

func WithIdleTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.idleTimeout = d
		}
	}
}

func New(upstream Upstream, opts ...Option) *Orchestrator {
	o := &Orchestrator{upstream: upstream, idleTimeout: defaultIdleTimeout}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Complete runs a buffered exchange and returns the dialect response body.
func (o *Orchestrator) Complete(ctx context.Context, codec translator.Codec, raw []byte) ([]byte, *Result, error) {
	req, err := codec.EncodeRequest(raw)
	if err != nil {
		return nil, nil, apperr.Validation("%v", err)
	}

	resp, err := o.upstream.Send(ctx, req)
	if err != nil {
		return nil, &Result{Model: req.Model}, apperr.From(err)
	}
	resp.ID = newID(codec.Dialect())
	resp.Model = req.Model

	body, err := codec.DecodeResponse(resp)
	if err != nil {
		return nil, &Result{Model: req.Model}, apperr.Translation("encode response", err)
	}
	return body, &Result{Model: req.Model, Usage: resp.Usage}, nil
}

// Stream runs a streaming exchange, pumping translated events into sink.
// The translated stream always ends with exactly one terminal sequence:
// Finish on success or upstream close, Fail on mid-stream errors. Errors
// before the first upstream byte are returned instead so the handler can
// answer with a plain error status.
func (o *Orchestrator) Stream(ctx context.Context, codec translator.Codec, raw []byte, sink EventSink) (*Result, error) {
	req, err := codec.EncodeRequest(raw)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	result := &Result{Model: req.Model, Stream: true}

	ch, err := o.upstream.SendStream(ctx, req)
	if err != nil {
		return result, apperr.From(err)
	}

	st := codec.NewStream(newID(codec.Dialect()), req.Model, kiro.EstimateInputTokens(req))

	writeAll := func(events []translator.Event) error {
		for _, ev := range events {
			if err := sink.Write(ev); err != nil {
				return err
			}
		}
		return nil
	}

	idle := time.NewTimer(o.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case item, ok := <-ch:
			if !ok {
				// Upstream closed without a terminal item; finish as an
				// empty end_turn so the client sees a complete stream.
				if err := writeAll(st.Finish(translator.StopInfo{})); err != nil {
					return result, nil
				}
				return result, nil
			}
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(o.idleTimeout)

			switch {
			case item.Delta != nil:
				if err := writeAll(st.Next(*item.Delta)); err != nil {
					log.Debug("gateway: client disconnected mid-stream")
					return result, nil
				}
			case item.Stop != nil:
				result.Usage = item.Stop.Usage
				writeAll(st.Finish(*item.Stop))
				drain(ch)
				return result, nil
			case item.Err != nil:
				appErr := apperr.From(item.Err)
				if appErr.Kind != apperr.KindCanceled {
					log.Warnf("gateway: upstream stream failed: %v", appErr)
				}
				writeAll(st.Fail(appErr))
				drain(ch)
				return result, nil
			}

		case <-idle.C:
			err := apperr.Upstream(0, "upstream stream stalled", context.DeadlineExceeded)
			log.Warnf("gateway: cutting stalled stream after %s idle", o.idleTimeout)
			writeAll(st.Fail(err))
			return result, nil

		case <-ctx.Done():
			// Client cancelled; the upstream context is derived from ctx,
			// so the producer shuts down on its own.
			writeAll(st.Fail(apperr.Canceled(ctx.Err())))
			return result, nil
		}
	}
}

func drain(ch <-chan translator.StreamItem) {
	for range ch {
	}
}

func newID(d translator.Dialect) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	if d == translator.DialectOpenAI {
		return "chatcmpl-" + hex[:24]
	}
	return "msg_" + hex[:24]
}
