// Package dispatch fans one webhook notification out to every target of a
// topic and aggregates the per-target results. Partial delivery is reported
// data, not an error: only topic lookup and authentication abort a dispatch.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/yige233/mirai-webhook/internal/auth"
	"github.com/yige233/mirai-webhook/internal/config"
	"github.com/yige233/mirai-webhook/internal/eventbus"
	"github.com/yige233/mirai-webhook/internal/gateway"
	"github.com/yige233/mirai-webhook/internal/message"
	"github.com/yige233/mirai-webhook/internal/response"
	logx "github.com/yige233/mirai-webhook/pkg/logx"
)

const timestampLayout = "2006/01/02 15:04:05"

// Request is one inbound webhook notification, already shape-validated by
// the HTTP layer.
type Request struct {
	TopicID string
	Title   string
	Content string
	Token   string
	Sig     string
}

// TargetError records one failed delivery.
type TargetError struct {
	Target int64  `json:"target"`
	Reason string `json:"reason"`
	Code   int    `json:"code"`
}

// Outcome is the success envelope: how many targets were addressed, how many
// deliveries succeeded, the failures, and the elapsed time in milliseconds.
type Outcome struct {
	Target    int           `json:"target"`
	Done      int           `json:"done"`
	BadResult []TargetError `json:"badResult"`
	Cost      int64         `json:"cost"`
}

// Router looks up topics, authenticates, builds the message and fans it out
// through the gateway sender.
type Router struct {
	topics map[string]config.Topic
	sender gateway.Sender
	log    logx.Logger
	bus    eventbus.Bus

	// now is stubbed in tests for a stable timestamp prefix.
	now func() time.Time
}

// New builds the topic map once; topics are immutable for the process
// lifetime. Duplicate ids keep the last entry.
func New(topics []config.Topic, sender gateway.Sender, log logx.Logger, bus eventbus.Bus) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := make(map[string]config.Topic, len(topics))
	for _, t := range topics {
		m[t.ID] = t
	}
	return &Router{topics: m, sender: sender, log: log, bus: bus, now: time.Now}
}

// HasTopic reports whether a topic id is configured.
func (r *Router) HasTopic(id string) bool {
	_, ok := r.topics[id]
	return ok
}

// Dispatch authenticates the request and delivers the message to every
// target of the topic, in configured order. It returns a typed error only
// for an unknown topic or failed authentication; everything past that point
// is reported inside the Outcome.
func (r *Router) Dispatch(ctx context.Context, req Request) (*Outcome, error) {
	start := r.now()

	topic, ok := r.topics[req.TopicID]
	if !ok {
		return nil, response.NotFound("unknown topic id: " + req.TopicID)
	}
	if err := auth.Verify(topic.Secure, auth.Credentials{Token: req.Token, Sig: req.Sig}, req.Title, req.Content); err != nil {
		return nil, err
	}

	// Base chain: timestamp + title header, then the parsed content. Each
	// target gets its own copy so mentions never leak between targets.
	base := message.Chain{}.Text(fmt.Sprintf("[%s] %s\n\n", start.Format(timestampLayout), req.Title))
	base = append(base, message.Parse(req.Content)...)

	bad := make([]TargetError, 0)
	for _, target := range topic.Targets {
		if target.Type != config.TargetFriend && target.Type != config.TargetGroup {
			r.log.Error("unknown target type", logx.String("type", target.Type), logx.Int64("target", target.Number))
			bad = append(bad, TargetError{
				Target: target.Number,
				Reason: "unknown target type: " + target.Type,
				Code:   500,
			})
			continue
		}

		chain := base.Clone()
		for _, id := range target.At {
			chain = chain.At(id)
		}

		res := r.sender.SendMessage(ctx, target.Type, target.Number, chain)
		if res.Code != 0 {
			bad = append(bad, TargetError{Target: target.Number, Reason: res.Msg, Code: res.Code})
		}
	}

	out := &Outcome{
		Target:    len(topic.Targets),
		Done:      len(topic.Targets) - len(bad),
		BadResult: bad,
		Cost:      time.Since(start).Milliseconds(),
	}
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: eventbus.DispatchDone, Data: map[string]any{
			"topic": req.TopicID,
			"done":  out.Done,
			"bad":   len(out.BadResult),
		}})
	}
	return out, nil
}
