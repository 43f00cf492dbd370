package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingNotifier struct{ got []Notice }

func (c *countingNotifier) Notify(_ context.Context, n Notice) { c.got = append(c.got, n) }

func TestNoticeWithDoesNotAlias(t *testing.T) {
	base := Notice{Title: "Order paid"}.With("Order", "TS-1")
	a := base.With("Amount", "10.00 RUB")
	b := base.With("Source", "sync")

	assert.Equal(t, "Order paid\nOrder: TS-1\nAmount: 10.00 RUB", a.PlainText())
	assert.Equal(t, "Order paid\nOrder: TS-1\nSource: sync", b.PlainText())
}

func TestFanoutSkipsNil(t *testing.T) {
	first, second := &countingNotifier{}, &countingNotifier{}
	var mailer *MailNotifier
	f := Fanout{first, nil, mailer, second}

	f.Notify(context.Background(), Notice{Title: "hi"})
	assert.Len(t, first.got, 1)
	assert.Len(t, second.got, 1)
}

func TestMailNotifierUnconfigured(t *testing.T) {
	assert.Nil(t, NewMailNotifier("", 587, "u", "p", "ops@example.com", zap.NewNop()))
	assert.Nil(t, NewMailNotifier("smtp.example.com", 587, "u", "p", "", zap.NewNop()))
}

func TestTelegramNotifierSendsHTML(t *testing.T) {
	type call struct {
		path string
		body tgSendMessage
	}
	calls := make(chan call, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var msg tgSendMessage
		_ = sonic.Unmarshal(raw, &msg)
		calls <- call{path: r.URL.Path, body: msg}
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	tg := NewTelegramNotifier(srv.URL, "123:abc", "-100500", 5*time.Second, zap.NewNop())
	require.True(t, tg.Configured())
	tg.Notify(context.Background(), Notice{Title: "Order paid"}.With("Order", "<TS-1>"))

	select {
	case c := <-calls:
		assert.Equal(t, "/bot123:abc/sendMessage", c.path)
		assert.Equal(t, "-100500", c.body.ChatID)
		assert.Equal(t, "HTML", c.body.ParseMode)
		assert.Equal(t, "<b>Order paid</b>\n<b>Order:</b> &lt;TS-1&gt;", c.body.Text)
	default:
		t.Fatal("telegram was not called")
	}
}

func TestTelegramNotifierUnconfiguredIsSilent(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer srv.Close()

	tg := NewTelegramNotifier(srv.URL, "", "-100500", time.Second, zap.NewNop())
	assert.False(t, tg.Configured())
	tg.Notify(context.Background(), Notice{Title: "x"})
	assert.False(t, called)
}

func TestTelegramNotifierSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	tg := NewTelegramNotifier(srv.URL, "t", "c", time.Second, zap.NewNop())
	assert.NotPanics(t, func() { tg.Notify(context.Background(), Notice{Title: "x"}) })
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), PaymentEvent{OrderNumber: "TS-1"}))
	assert.NoError(t, p.Close())
}
