package checker

import (
	"context"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("from@x.dev", "to@y.dev", "Hello", "line1\nline2"))

	assert.Contains(t, msg, "From: from@x.dev\r\n")
	assert.Contains(t, msg, "To: to@y.dev\r\n")
	assert.Contains(t, msg, "Subject: Hello\r\n")
	assert.Contains(t, msg, "Content-Type: text/plain; charset=utf-8\r\n\r\nline1\r\nline2\r\n")
}

func TestHeaderValue_StripsLineBreaks(t *testing.T) {
	assert.Equal(t, "evil@x.dev Bcc: all@x.dev", headerValue("evil@x.dev\r\nBcc: all@x.dev"))
}

func TestHost(t *testing.T) {
	assert.Equal(t, "smtp.example.com", host("smtp.example.com:587"))
	assert.Equal(t, "smtp.example.com", host("smtp.example.com"))
}

func TestMailer_SendFailsWhenServerUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	m := NewMailer(MailerConfig{Addr: addr, From: "noreply@deadswitch.dev", Timeout: 200 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.Error(t, m.Send(ctx, "to@example.com", "s", "b"))
}

// fakeSMTP accepts one session without STARTTLS or AUTH and records what the client sent.
type fakeSMTP struct {
	addr string
	done chan struct{}

	mu   sync.Mutex
	cmds []string
	data string
}

func startFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	s := &fakeSMTP{addr: ln.Addr().String(), done: make(chan struct{})}
	go func() {
		defer close(s.done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
		s.serve(textproto.NewConn(conn))
	}()
	return s
}

func (s *fakeSMTP) serve(tp *textproto.Conn) {
	_ = tp.PrintfLine("220 fake ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.cmds = append(s.cmds, line)
		s.mu.Unlock()

		switch verb := strings.ToUpper(strings.Fields(line + " x")[0]); verb {
		case "EHLO", "HELO":
			_ = tp.PrintfLine("250 fake")
		case "DATA":
			_ = tp.PrintfLine("354 go ahead")
			body, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.data = string(body)
			s.mu.Unlock()
			_ = tp.PrintfLine("250 queued")
		case "QUIT":
			_ = tp.PrintfLine("221 bye")
			return
		default:
			_ = tp.PrintfLine("250 ok")
		}
	}
}

func (s *fakeSMTP) wait(t *testing.T) {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		t.Fatal("smtp session did not finish")
	}
}

func TestMailer_SendDeliversOverSMTP(t *testing.T) {
	srv := startFakeSMTP(t)
	m := NewMailer(MailerConfig{Addr: srv.addr, From: "noreply@deadswitch.dev", Timeout: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, m.Send(ctx, "contact@example.com", "Urgent: u@example.com has not checked in", "Hi A,\nplease check on them."))
	srv.wait(t)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	var verbs []string
	for _, c := range srv.cmds {
		verbs = append(verbs, strings.Fields(c)[0])
	}
	assert.Equal(t, []string{"EHLO", "MAIL", "RCPT", "DATA", "QUIT"}, verbs)
	assert.True(t, strings.HasPrefix(srv.cmds[1], "MAIL FROM:<noreply@deadswitch.dev>"))
	assert.Equal(t, "RCPT TO:<contact@example.com>", srv.cmds[2])

	assert.Contains(t, srv.data, "From: noreply@deadswitch.dev\n")
	assert.Contains(t, srv.data, "To: contact@example.com\n")
	assert.Contains(t, srv.data, "Subject: Urgent: u@example.com has not checked in\n")
	assert.Contains(t, srv.data, "Hi A,\nplease check on them.\n")
}

func TestMailer_WarnsWhenCredentialsCannotBeUsed(t *testing.T) {
	srv := startFakeSMTP(t)
	core, logs := observer.New(zapcore.WarnLevel)
	m := NewMailer(MailerConfig{
		Addr:     srv.addr,
		From:     "noreply@deadswitch.dev",
		User:     "deadswitch",
		Password: "secret",
		Timeout:  time.Second,
	}).WithLogger(zap.New(core))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, m.Send(ctx, "contact@example.com", "s", "b"))
	srv.wait(t)

	assert.Equal(t, 1, logs.FilterMessageSnippet("does not offer AUTH").Len())
	srv.mu.Lock()
	defer srv.mu.Unlock()
	for _, c := range srv.cmds {
		assert.NotContains(t, c, "AUTH")
	}
}
