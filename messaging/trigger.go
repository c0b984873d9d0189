// messaging/trigger.go
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/gewnthar/civicpulse/config"
	"github.com/gewnthar/civicpulse/metrics"
	"github.com/gewnthar/civicpulse/services"
)

// TriggerRequest is the optional JSON body of a trigger message. An empty
// body or an empty collector list runs every collector.
type TriggerRequest struct {
	Collectors  []string `json:"collectors,omitempty"`
	RequestedBy string   `json:"requested_by,omitempty"`
}

// TriggerReply is sent back when the trigger message carries a reply subject.
type TriggerReply struct {
	RunID  string   `json:"run_id,omitempty"`
	Failed []string `json:"failed,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// Runner runs a subset of collectors. *services.Orchestrator implements it.
type Runner interface {
	RunOnly(ctx context.Context, names ...string) (services.Report, error)
}

// HandleTrigger decodes a trigger payload and runs the requested collectors.
func HandleTrigger(ctx context.Context, runner Runner, data []byte) (services.Report, error) {
	var req TriggerRequest
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			return services.Report{}, fmt.Errorf("failed to decode trigger payload: %w", err)
		}
	}
	return runner.RunOnly(ctx, req.Collectors...)
}

// Listener runs the orchestrator whenever a message arrives on the trigger
// subject. Queue group members share the work so a trigger runs once.
type Listener struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	runner  Runner
	cfg     config.NATSConfig
	timeout time.Duration
	logger  *slog.Logger
}

// Connect dials the NATS server named in cfg.
func Connect(cfg config.NATSConfig, logger *slog.Logger) (*nats.Conn, error) {
	logger = logger.With("component", "nats")
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

func NewListener(conn *nats.Conn, runner Runner, cfg config.NATSConfig, runTimeout time.Duration, logger *slog.Logger) *Listener {
	return &Listener{
		conn:    conn,
		runner:  runner,
		cfg:     cfg,
		timeout: runTimeout,
		logger:  logger.With("component", "trigger_listener"),
	}
}

// Start subscribes to the trigger subject.
func (l *Listener) Start() error {
	sub, err := l.conn.QueueSubscribe(l.cfg.Subject, l.cfg.Queue, l.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", l.cfg.Subject, err)
	}
	l.sub = sub
	l.logger.Info("listening for ingestion triggers", "subject", l.cfg.Subject, "queue", l.cfg.Queue)
	return nil
}

// Stop drains the subscription so an in-flight run completes.
func (l *Listener) Stop() error {
	if l.sub == nil {
		return nil
	}
	return l.sub.Drain()
}

func (l *Listener) handle(msg *nats.Msg) {
	metrics.TriggersTotal.WithLabelValues("nats").Inc()

	ctx := context.Background()
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	report, err := HandleTrigger(ctx, l.runner, msg.Data)
	reply := TriggerReply{RunID: report.RunID, Failed: report.Failed()}
	if err != nil {
		l.logger.Error("trigger rejected", "subject", msg.Subject, "error", err)
		reply.Error = err.Error()
	}

	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		l.logger.Error("failed to encode trigger reply", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		l.logger.Warn("failed to send trigger reply", "error", err)
	}
}

// Trigger publishes a trigger request and waits up to timeout for the reply.
func Trigger(ctx context.Context, conn *nats.Conn, subject string, req TriggerRequest) (TriggerReply, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return TriggerReply{}, fmt.Errorf("failed to encode trigger: %w", err)
	}
	msg, err := conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return TriggerReply{}, fmt.Errorf("failed to send trigger to %s: %w", subject, err)
	}

	var reply TriggerReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return TriggerReply{}, fmt.Errorf("failed to decode trigger reply: %w", err)
	}
	return reply, nil
}
