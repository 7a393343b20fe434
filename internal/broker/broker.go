// Package broker is the long-lived coordinator between page collectors
// and the remote classification service. It owns the in-memory mirror of
// the device identity and settles every message with exactly one reply.
package broker

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/KalaHanok/webclassification/internal/identity"
	"github.com/KalaHanok/webclassification/internal/infrastructure/logging"
	"github.com/KalaHanok/webclassification/internal/infrastructure/monitoring"
)

const classifyEndpoint = "/api/classify/"

// state is the broker's owned mirror of the persisted identity. It is
// touched only by the run loop goroutine.
type state struct {
	registered bool
	deviceID   string
}

// envelope carries one request through the mailbox with its reply channel.
type envelope struct {
	ctx   context.Context
	req   Request
	reply chan Response
}

// Broker coordinates classification requests against the device identity
// state machine (Unregistered -> Registered).
type Broker struct {
	store   *identity.Store
	client  *resty.Client
	log     *logging.Logger
	metrics *monitoring.Metrics

	mailbox chan envelope
	done    chan struct{}

	state state
}

// New creates a broker. The client should come from transport.NewClassifier.
func New(store *identity.Store, client *resty.Client, log *logging.Logger, metrics *monitoring.Metrics) *Broker {
	if log == nil {
		log = logging.NewNop()
	}
	return &Broker{
		store:   store,
		client:  client,
		log:     log,
		metrics: metrics,
		mailbox: make(chan envelope, 64),
		done:    make(chan struct{}),
	}
}

// Run loads the persisted identity and serves the mailbox until the
// context is canceled. It must be called exactly once.
func (b *Broker) Run(ctx context.Context) {
	defer close(b.done)

	b.load(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-b.mailbox:
			b.handle(env)
		}
	}
}

// load mirrors the persisted identity into broker state. A load failure
// leaves the broker unregistered, which fails open on every verdict.
func (b *Broker) load(ctx context.Context) {
	id, err := b.store.Load(ctx)
	if err != nil {
		b.log.Warn("identity load failed, starting unregistered", zap.Error(err))
		return
	}
	b.state = state{registered: id.Registered, deviceID: id.DeviceID}
	b.log.Info("identity state loaded", zap.Bool("registered", id.Registered))
}

// handle dispatches one message. classifyContent settles asynchronously so
// a slow remote call never stalls the mailbox; updateRegistration is
// acknowledged synchronously.
func (b *Broker) handle(env envelope) {
	switch env.req.Type {
	case KindClassifyContent:
		snapshot := b.state
		go func() {
			verdict := b.classify(env.ctx, snapshot, env.req.URL, env.req.Text)
			env.reply <- verdictResponse(verdict)
		}()

	case KindUpdateRegistration:
		b.state = state{registered: env.req.Registered, deviceID: env.req.DeviceID}
		b.log.Info("registration state updated", zap.Bool("registered", env.req.Registered))
		env.reply <- ackResponse()

	default:
		b.log.Warn("unknown message type", zap.String("type", env.req.Type))
		env.reply <- errorResponse(ErrUnknownMessage)
	}
}

// Dispatch sends a request to the broker and blocks until its single
// reply. The caller always receives exactly one response: if the broker
// is unavailable or the context expires first, classify requests settle
// with the fail-open verdict and everything else with a structured error.
func (b *Broker) Dispatch(ctx context.Context, req Request) Response {
	env := envelope{ctx: ctx, req: req, reply: make(chan Response, 1)}

	select {
	case b.mailbox <- env:
	case <-b.done:
		return b.fallback(req)
	case <-ctx.Done():
		return b.fallback(req)
	}

	// The mailbox is buffered, so the send above can win its race against
	// a concurrent shutdown and enqueue an envelope the run loop will
	// never handle. Watching done here keeps the one-reply guarantee.
	select {
	case resp := <-env.reply:
		return resp
	case <-b.done:
		return b.fallback(req)
	case <-ctx.Done():
		return b.fallback(req)
	}
}

// fallback settles a request that could not reach the run loop.
func (b *Broker) fallback(req Request) Response {
	if req.Type == KindClassifyContent {
		if b.metrics != nil {
			b.metrics.ClassificationOutcomes.WithLabelValues(monitoring.OutcomeFailOpen).Inc()
		}
		return verdictResponse(Verdict{Block: false})
	}
	return errorResponse("broker unavailable")
}

// Classify requests a verdict for a page load. It never blocks a page on
// failure: transport errors, non-2xx statuses, and malformed bodies all
// resolve to the allow verdict.
func (b *Broker) Classify(ctx context.Context, url, text string) Verdict {
	resp := b.Dispatch(ctx, Request{Type: KindClassifyContent, URL: url, Text: text})
	if resp.Block == nil {
		return Verdict{Block: false}
	}
	return Verdict{Block: *resp.Block, Reason: resp.Reason}
}

// classifyPayload is the wire body sent to the remote classifier.
type classifyPayload struct {
	Domain      string `json:"domain"`
	TextContent string `json:"text_content"`
	DeviceID    string `json:"device_id"`
}

// classify applies the precondition checks and, when they pass, calls the
// remote classifier. Order matters: unregistered devices never hit the
// network, and whitelisted providers short-circuit even when registered.
func (b *Broker) classify(ctx context.Context, snapshot state, url, text string) Verdict {
	if !snapshot.registered {
		if b.metrics != nil {
			b.metrics.ClassificationOutcomes.WithLabelValues(monitoring.OutcomeUnregistered).Inc()
		}
		return Verdict{Block: false}
	}
	if isWhitelisted(url) {
		if b.metrics != nil {
			b.metrics.ClassificationOutcomes.WithLabelValues(monitoring.OutcomeBypassed).Inc()
		}
		return Verdict{Block: false}
	}

	verdict, err := b.requestVerdict(ctx, snapshot.deviceID, url, text)
	if err != nil {
		b.log.Error("classification failed, failing open", zap.Error(err), zap.String("domain", url))
		if b.metrics != nil {
			b.metrics.ClassificationOutcomes.WithLabelValues(monitoring.OutcomeFailOpen).Inc()
		}
		return Verdict{Block: false}
	}

	outcome := monitoring.OutcomeAllowed
	if verdict.Block {
		outcome = monitoring.OutcomeBlocked
	}
	if b.metrics != nil {
		b.metrics.ClassificationOutcomes.WithLabelValues(outcome).Inc()
	}
	return verdict
}

// requestVerdict issues the HTTP call to the remote classifier.
func (b *Broker) requestVerdict(ctx context.Context, deviceID, url, text string) (Verdict, error) {
	if b.metrics != nil {
		b.metrics.ClassificationRequests.Inc()
	}

	var verdict Verdict
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(classifyPayload{Domain: url, TextContent: text, DeviceID: deviceID}).
		SetResult(&verdict).
		Post(classifyEndpoint)
	if err != nil {
		return Verdict{}, fmt.Errorf("classifier request failed: %w", err)
	}
	if b.metrics != nil {
		b.metrics.ClassificationDuration.Observe(resp.Time().Seconds())
	}
	if resp.IsError() {
		return Verdict{}, fmt.Errorf("classifier error: %s", resp.Status())
	}
	return verdict, nil
}
