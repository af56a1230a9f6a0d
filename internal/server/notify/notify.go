// Package notify publishes job results to NATS so other services can react
// to finished maintenance runs.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cateringhub/backoffice/internal/logging"
	"github.com/cateringhub/backoffice/internal/server/jobs"
	"github.com/nats-io/nats.go"
)

// SubjectPrefix is prepended to the job kind to form the subject.
const SubjectPrefix = "backoffice.jobs."

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// JobEvents publishes every job result as JSON on backoffice.jobs.<kind>.
type JobEvents struct {
	pub Publisher
}

func NewJobEvents(pub Publisher) *JobEvents {
	return &JobEvents{pub: pub}
}

// Subject returns the subject for kind.
func Subject(kind jobs.Kind) string {
	return SubjectPrefix + string(kind)
}

// Record implements jobs.Sink.
func (e *JobEvents) Record(ctx context.Context, res jobs.Result) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal job result: %w", err)
	}
	return e.pub.Publish(Subject(res.Kind), data)
}

// Connect dials NATS with reconnect handling that logs through log.
func Connect(url string, log logging.Logger) (*nats.Conn, error) {
	log = log.With("module", "nats")
	nc, err := nats.Connect(url,
		nats.Name("backoffice"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn(context.Background(), "NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info(context.Background(), "NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}
