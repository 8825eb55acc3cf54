package watsonx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/modelfleet/watsonx/internal/catalog"
	"github.com/modelfleet/watsonx/internal/iam"
	"github.com/modelfleet/watsonx/internal/logging"
	"github.com/modelfleet/watsonx/internal/sse"
	"github.com/modelfleet/watsonx/internal/version"
)

// Config holds construction-time settings for a Client.
type Config struct {
	// HTTPClient is used for generation requests. Defaults to a client with
	// no timeout; streaming responses are bounded by the caller's context.
	HTTPClient *http.Client
	// IAMEndpoint overrides the IBM Cloud IAM token endpoint.
	IAMEndpoint string
	// PricingFile optionally merges a YAML pricing catalog over the builtin one.
	PricingFile string
	Logger      *logrus.Logger
	// LogFile routes adapter logs to a size-rotated file when no Logger is
	// supplied. "-" discards them.
	LogFile     string
	LogMaxBytes int64
}

// Client streams text generation from watsonx.ai. Each Client owns its token
// cache, so constructing one per tenant scope gives credential isolation;
// a single Client is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	tokens     *iam.Cache
	models     *catalog.Catalog
	log        *logrus.Logger
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil && cfg.LogFile != "" {
		out, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxBytes)
		if err != nil {
			return nil, err
		}
		logger = logrus.New()
		logger.SetOutput(out)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	models := catalog.New()
	if cfg.PricingFile != "" {
		if err := models.LoadFile(cfg.PricingFile); err != nil {
			return nil, err
		}
	}
	return &Client{
		httpClient: httpClient,
		tokens:     iam.NewCache(cfg.IAMEndpoint, &http.Client{Timeout: 30 * time.Second}, logger),
		models:     models,
		log:        logger,
	}, nil
}

// Stream starts a generation stream and returns immediately. All work runs in
// a background goroutine that owns the sending half of the channel and closes
// it after the single terminal event (done or error). Cancelling ctx aborts
// the token exchange and the generation request; the abort surfaces as a
// terminal error event, never as a silent stop.
func (c *Client) Stream(ctx context.Context, model string, conv Conversation, opts StreamOptions) <-chan Event {
	ch := make(chan Event, 16)
	go c.run(ctx, model, conv, opts, ch)
	return ch
}

func (c *Client) run(ctx context.Context, model string, conv Conversation, opts StreamOptions, ch chan<- Event) {
	defer close(ch)

	msg := &Message{
		ID:      uuid.NewString(),
		Role:    RoleAssistant,
		Content: []ContentBlock{},
	}
	fail := func(reason error) {
		msg.StopReason = StopReasonError
		msg.ErrorMessage = reason.Error()
		c.log.WithField("model", model).WithError(reason).Debug("watsonx: stream failed")
		ch <- Event{Type: EventError, Reason: StopReasonError, Err: reason, Partial: msg}
	}

	opts = opts.withDefaults()
	if opts.APIKey == "" {
		fail(&ConfigurationError{Missing: "api key (set StreamOptions.APIKey or " + EnvAPIKey + ")"})
		return
	}
	if opts.ProjectID == "" {
		fail(&ConfigurationError{Missing: "project id (set StreamOptions.ProjectID or " + EnvProjectID + ")"})
		return
	}

	ch <- Event{Type: EventStart, Partial: msg}

	token, err := c.tokens.Token(ctx, opts.APIKey)
	if err != nil {
		var xerr *iam.ExchangeError
		if errors.As(err, &xerr) {
			fail(&AuthExchangeError{Status: xerr.Status, Body: xerr.Body})
		} else {
			fail(&AuthExchangeError{Body: err.Error()})
		}
		return
	}

	resp, err := c.send(ctx, token, model, RenderPrompt(conv), opts)
	if err != nil {
		fail(err)
		return
	}
	defer resp.Body.Close()

	rec := sse.NewReconstructor(c.log)
	buf := make([]byte, 8192)
	for {
		select {
		case <-ctx.Done():
			fail(&TransportError{Err: ctx.Err()})
			return
		default:
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			c.forward(rec.Feed(buf[:n]), msg, ch)
		}
		if readErr != nil {
			if readErr == io.EOF {
				c.forward(rec.Finish(), msg, ch)
				c.finish(model, opts, rec, msg, ch)
				return
			}
			fail(&TransportError{Err: readErr})
			return
		}
	}
}

func (c *Client) send(ctx context.Context, token, model, input string, opts StreamOptions) (*http.Response, error) {
	parameters := map[string]interface{}{
		"max_new_tokens": opts.MaxNewTokens,
		"temperature":    *opts.Temperature,
	}
	if opts.DecodingMethod != "" {
		parameters["decoding_method"] = opts.DecodingMethod
	}
	if opts.TopP != nil {
		parameters["top_p"] = *opts.TopP
	}
	if opts.TopK != nil {
		parameters["top_k"] = *opts.TopK
	}
	if opts.RepetitionPenalty != nil {
		parameters["repetition_penalty"] = *opts.RepetitionPenalty
	}
	if len(opts.StopSequences) > 0 {
		parameters["stop_sequences"] = opts.StopSequences
	}
	payload := map[string]interface{}{
		"model_id":   model,
		"input":      input,
		"project_id": opts.ProjectID,
		"parameters": parameters,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("watsonx: marshal request: %w", err)
	}

	endpoint := opts.BaseURL + "/ml/v1/text/generation_stream?version=" + apiVersion
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("watsonx: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("User-Agent", version.UserAgent())
	for k, v := range opts.ExtraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	return resp, nil
}

// forward maps reconstructor signals onto channel events, growing the single
// text block of the output message.
func (c *Client) forward(events []sse.Event, msg *Message, ch chan<- Event) {
	for _, ev := range events {
		switch ev.Kind {
		case sse.KindTextStart:
			msg.Content = append(msg.Content, ContentBlock{Type: "text"})
			ch <- Event{Type: EventTextStart, ContentIndex: len(msg.Content) - 1, Partial: msg}
		case sse.KindTextDelta:
			idx := len(msg.Content) - 1
			msg.Content[idx].Text += ev.Delta
			ch <- Event{Type: EventTextDelta, ContentIndex: idx, Delta: ev.Delta, Partial: msg}
		}
	}
}

func (c *Client) finish(model string, opts StreamOptions, rec *sse.Reconstructor, msg *Message, ch chan<- Event) {
	if dropped := rec.Dropped(); dropped > 0 {
		c.log.WithField("model", model).WithField("frames", dropped).Debug("watsonx: skipped malformed frames")
	}

	msg.Usage.InputTokens = rec.InputTokens()
	msg.Usage.OutputTokens = rec.OutputTokens()
	msg.Usage.TotalTokens = msg.Usage.InputTokens + msg.Usage.OutputTokens
	msg.Usage.Cost = costFor(msg.Usage.InputTokens, msg.Usage.OutputTokens, opts.pricingFor(model, c.models))
	msg.StopReason = StopReasonStop

	if rec.TextOpened() {
		idx := len(msg.Content) - 1
		ch <- Event{Type: EventTextEnd, ContentIndex: idx, Content: rec.Text(), Partial: msg}
	}
	ch <- Event{Type: EventDone, Reason: StopReasonStop, Partial: msg}
}

// costFor derives the USD cost breakdown from token counts and
// per-million-token pricing.
func costFor(inputTokens, outputTokens int, p Pricing) Cost {
	c := Cost{
		Input:  float64(inputTokens) / 1e6 * p.InputPerMTok,
		Output: float64(outputTokens) / 1e6 * p.OutputPerMTok,
	}
	c.Total = c.Input + c.Output
	return c
}
