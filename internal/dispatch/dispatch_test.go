package dispatch

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/yige233/mirai-webhook/internal/auth"
	"github.com/yige233/mirai-webhook/internal/config"
	"github.com/yige233/mirai-webhook/internal/gateway"
	"github.com/yige233/mirai-webhook/internal/message"
	"github.com/yige233/mirai-webhook/internal/response"
	logx "github.com/yige233/mirai-webhook/pkg/logx"
)

type sentCall struct {
	kind   string
	target int64
	chain  message.Chain
}

type fakeSender struct {
	calls   []sentCall
	results map[int64]gateway.Result
}

func (f *fakeSender) SendMessage(_ context.Context, kind string, target int64, chain message.Chain) gateway.Result {
	f.calls = append(f.calls, sentCall{kind, target, chain})
	if r, ok := f.results[target]; ok {
		return r
	}
	return gateway.Result{Code: 0, Msg: "success"}
}

func testTopics() []config.Topic {
	return []config.Topic{
		{
			ID:     "deploy",
			Secure: config.Secure{Method: config.SecureToken, Secret: "tok"},
			Targets: []config.Target{
				{Type: config.TargetFriend, Number: 100},
				{Type: config.TargetGroup, Number: 200, At: []int64{1, 2}},
			},
		},
		{
			ID:     "mixed",
			Secure: config.Secure{Method: config.SecureToken, Secret: "tok"},
			Targets: []config.Target{
				{Type: config.TargetFriend, Number: 10},
				{Type: "channel", Number: 20},
				{Type: config.TargetGroup, Number: 30},
			},
		},
	}
}

func newTestRouter(s gateway.Sender) *Router {
	r := New(testTopics(), s, logx.Nop(), nil)
	r.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestDispatchFanOut(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	r := newTestRouter(sender)

	out, err := r.Dispatch(context.Background(), Request{
		TopicID: "deploy", Title: "build ok", Content: "all green", Token: "tok",
	})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if out.Target != 2 || out.Done != 2 || len(out.BadResult) != 0 {
		t.Fatalf("outcome = %+v", out)
	}
	if len(sender.calls) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sender.calls))
	}
	if sender.calls[0].kind != config.TargetFriend || sender.calls[0].target != 100 {
		t.Fatalf("first call = %+v", sender.calls[0])
	}
	if sender.calls[1].kind != config.TargetGroup || sender.calls[1].target != 200 {
		t.Fatalf("second call = %+v", sender.calls[1])
	}
}

func TestDispatchMessageHeaderAndMentions(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	r := newTestRouter(sender)

	if _, err := r.Dispatch(context.Background(), Request{
		TopicID: "deploy", Title: "build ok", Content: "all green", Token: "tok",
	}); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}

	head, ok := sender.calls[0].chain[0].(message.Plain)
	if !ok {
		t.Fatalf("first segment = %#v, want Plain", sender.calls[0].chain[0])
	}
	if want := "[2024/05/01 12:00:00] build ok\n\n"; head.Text != want {
		t.Fatalf("header = %q, want %q", head.Text, want)
	}

	// The friend target gets no mentions; the group target gets its own copy
	// with the configured mentions appended.
	friendChain := sender.calls[0].chain
	groupChain := sender.calls[1].chain
	if len(friendChain) != 2 {
		t.Fatalf("friend chain = %#v", friendChain)
	}
	if len(groupChain) != 4 {
		t.Fatalf("group chain = %#v", groupChain)
	}
	if at, ok := groupChain[2].(message.At); !ok || at.Target != int64(1) {
		t.Fatalf("group mention = %#v", groupChain[2])
	}
}

func TestDispatchUnsupportedTargetType(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	r := newTestRouter(sender)

	out, err := r.Dispatch(context.Background(), Request{
		TopicID: "mixed", Title: "t", Content: "c", Token: "tok",
	})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if out.Target != 3 || out.Done != 2 {
		t.Fatalf("outcome = %+v", out)
	}
	if len(out.BadResult) != 1 || out.BadResult[0].Target != 20 || out.BadResult[0].Code != 500 {
		t.Fatalf("badResult = %+v", out.BadResult)
	}
}

func TestDispatchPartialFailure(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{results: map[int64]gateway.Result{
		30: {Code: 500, Msg: "websocket connection closed"},
	}}
	r := newTestRouter(sender)

	out, err := r.Dispatch(context.Background(), Request{
		TopicID: "mixed", Title: "t", Content: "c", Token: "tok",
	})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if out.Target != 3 || out.Done != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	if len(out.BadResult) != 2 {
		t.Fatalf("badResult = %+v", out.BadResult)
	}
	// The unknown target type is rejected locally, in configured order.
	if out.BadResult[0].Target != 20 || out.BadResult[0].Code != 500 ||
		!strings.Contains(out.BadResult[0].Reason, "unknown target type") {
		t.Fatalf("badResult[0] = %+v", out.BadResult[0])
	}
	if out.BadResult[1].Target != 30 || out.BadResult[1].Code != 500 {
		t.Fatalf("badResult[1] = %+v", out.BadResult[1])
	}
	// The bad-typed target never reaches the sender.
	for _, c := range sender.calls {
		if c.target == 20 {
			t.Fatal("unknown target type was sent to the gateway")
		}
	}
}

func TestDispatchUnknownTopic(t *testing.T) {
	t.Parallel()
	r := newTestRouter(&fakeSender{})
	_, err := r.Dispatch(context.Background(), Request{TopicID: "nope", Title: "t", Content: "c"})
	if err == nil {
		t.Fatal("expected error for unknown topic")
	}
	if response.KindOf(err) != response.KindNotFound {
		t.Fatalf("error kind = %v, want NotFound", response.KindOf(err))
	}
}

func TestDispatchAuthFailureAbortsBeforeSending(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	r := newTestRouter(sender)

	_, err := r.Dispatch(context.Background(), Request{TopicID: "deploy", Title: "t", Content: "c", Token: "bad"})
	if response.KindOf(err) != response.KindForbiddenOperation {
		t.Fatalf("error kind = %v, want ForbiddenOperation", response.KindOf(err))
	}
	if len(sender.calls) != 0 {
		t.Fatalf("no message should be sent on auth failure, got %d", len(sender.calls))
	}
}

func TestDispatchSignatureAuth(t *testing.T) {
	t.Parallel()
	topics := []config.Topic{{
		ID:      "signed",
		Secure:  config.Secure{Method: config.SecureSigKey, Secret: "k"},
		Targets: []config.Target{{Type: config.TargetFriend, Number: 1}},
	}}
	sender := &fakeSender{}
	r := New(topics, sender, logx.Nop(), nil)

	sig := auth.Signature("t", "c", "k")
	out, err := r.Dispatch(context.Background(), Request{TopicID: "signed", Title: "t", Content: "c", Sig: sig})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if out.Done != 1 {
		t.Fatalf("outcome = %+v", out)
	}
}
