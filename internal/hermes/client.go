package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Request subjects served by galaxy.
const (
	SubjectReplyGenerate    = "galaxy.reply.generate"
	SubjectProfileSummarize = "galaxy.profile.summarize"
	SubjectTrendingAnalyze  = "galaxy.trending.analyze"
)

// QueueGroup load-balances requests across galaxy instances.
const QueueGroup = "galaxy"

// RequestHandler answers one request. The returned value is sent back as JSON.
type RequestHandler func(ctx context.Context, data []byte) (any, error)

// ErrorReply is sent when a handler fails.
type ErrorReply struct {
	Error string `json:"error"`
}

type Client struct {
	conn           *nats.Conn
	subs           []*nats.Subscription
	logger         *slog.Logger
	requestTimeout time.Duration
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("galaxy"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger, requestTimeout: 5 * time.Minute}, nil
}

// SetRequestTimeout bounds how long a request handler may run.
func (c *Client) SetRequestTimeout(d time.Duration) {
	c.requestTimeout = d
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

// Handle serves request/reply traffic on subject within the galaxy queue
// group. Each request runs in its own goroutine.
func (c *Client) Handle(subject string, handler RequestHandler) error {
	sub, err := c.conn.QueueSubscribe(subject, QueueGroup, func(msg *nats.Msg) {
		go c.serve(msg, handler)
	})
	if err != nil {
		return fmt.Errorf("queue subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("handling requests", "subject", subject, "queue", QueueGroup)
	return nil
}

func (c *Client) serve(msg *nats.Msg, handler RequestHandler) {
	ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
	defer cancel()

	payload := c.dispatch(ctx, msg.Subject, msg.Data, handler)
	if msg.Reply == "" {
		c.logger.Warn("request without reply subject", "subject", msg.Subject)
		return
	}
	if err := msg.Respond(payload); err != nil {
		c.logger.Error("failed to respond", "subject", msg.Subject, "error", err)
	}
}

// dispatch runs handler and encodes its result or error as the reply body.
func (c *Client) dispatch(ctx context.Context, subject string, data []byte, handler RequestHandler) []byte {
	result, err := handler(ctx, data)
	if err != nil {
		c.logger.Error("request failed", "subject", subject, "error", err)
		result = ErrorReply{Error: err.Error()}
	}

	payload, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("failed to marshal reply", "subject", subject, "error", err)
		payload, _ = json.Marshal(ErrorReply{Error: "internal error"})
	}
	return payload
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
