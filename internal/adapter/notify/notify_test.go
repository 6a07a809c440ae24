package notify

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/mmcdole/hddsync/internal/adapter"
	"github.com/mmcdole/hddsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewNotifier(t *testing.T) {
	tests := []struct {
		name string
		cfg  adapter.MailConfig
		want any
	}{
		{"disabled without server", adapter.MailConfig{Provider: adapter.MailProviderSMTP, Sender: "a@b.c"}, Nop{}},
		{"smtp", adapter.MailConfig{Provider: adapter.MailProviderSMTP, SMTPServer: "smtp.b.c", Sender: "a@b.c"}, &SMTPNotifier{}},
		{"sendgrid", adapter.MailConfig{Provider: adapter.MailProviderSendGrid, SendGridAPIKey: "SG.x", Sender: "a@b.c"}, &SendGridNotifier{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewNotifier(&tt.cfg, quietLogger())
			require.NoError(t, err)
			assert.IsType(t, tt.want, n)
		})
	}
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Notify(t.Context()))
}

func TestCompletionMessage(t *testing.T) {
	cfg := &adapter.MailConfig{Sender: "sync@example.com"}
	msg, err := completionMessage(cfg).mailMsg()
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()

	assert.Contains(t, raw, "From: <sync@example.com>")
	assert.Contains(t, raw, "To: <sync@example.com>")
	assert.Contains(t, raw, "Subject: "+Subject)
	assert.Contains(t, raw, "Date: ")
	assert.Contains(t, raw, "Message-ID: <")
	assert.Contains(t, raw, Body)
}

func TestCompletionMessage_InvalidRecipient(t *testing.T) {
	cfg := &adapter.MailConfig{Sender: "sync@example.com", Receiver: "not an address"}
	_, err := completionMessage(cfg).mailMsg()
	require.Error(t, err)
}

// fakeSMTP accepts a single plain-text session and captures the DATA payload
type fakeSMTP struct {
	ln   net.Listener
	wg   sync.WaitGroup
	mu   sync.Mutex
	cmds []string
	data string
}

func newFakeSMTP(t *testing.T) *fakeSMTP {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeSMTP{ln: ln}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(func() {
		ln.Close()
		s.wg.Wait()
	})
	return s
}

func (s *fakeSMTP) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeSMTP) serve() {
	defer s.wg.Done()
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	reply := func(line string) { io.WriteString(conn, line+"\r\n") }

	reply("220 fake ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		s.mu.Lock()
		s.cmds = append(s.cmds, cmd)
		s.mu.Unlock()

		switch verb := strings.ToUpper(strings.SplitN(cmd, " ", 2)[0]); verb {
		case "EHLO", "HELO":
			reply("250-fake")
			reply("250 8BITMIME")
		case "MAIL", "RCPT", "RSET", "NOOP":
			reply("250 OK")
		case "DATA":
			reply("354 go ahead")
			var body strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				body.WriteString(l)
			}
			s.mu.Lock()
			s.data = body.String()
			s.mu.Unlock()
			reply("250 queued")
		case "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 unsupported")
		}
	}
}

func TestSMTPNotifier_SendsCompletionMail(t *testing.T) {
	srv := newFakeSMTP(t)
	cfg := &adapter.MailConfig{
		Provider:   adapter.MailProviderSMTP,
		SMTPServer: "127.0.0.1",
		SMTPPort:   srv.port(),
		Sender:     "sync@example.com",
		Receiver:   "me@example.com",
	}

	require.NoError(t, NewSMTPNotifier(cfg, quietLogger()).Notify(t.Context()))
	srv.ln.Close()
	srv.wg.Wait()

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Contains(t, srv.cmds, "MAIL FROM:<sync@example.com> BODY=8BITMIME")
	assert.Contains(t, srv.cmds, "RCPT TO:<me@example.com>")
	assert.Contains(t, srv.data, "Subject: "+Subject)
	assert.Contains(t, srv.data, "Message-ID: <")
	assert.Contains(t, srv.data, "Date: ")
	assert.Contains(t, srv.data, Body)
}

func TestSMTPNotifier_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cfg := &adapter.MailConfig{SMTPServer: "127.0.0.1", SMTPPort: port, Sender: "a@example.com"}
	err = NewSMTPNotifier(cfg, quietLogger()).Notify(t.Context())
	require.ErrorIs(t, err, domain.ErrNotifyFailed)
	assert.Contains(t, err.Error(), strconv.Itoa(port))
}

func TestSendGridNotifier(t *testing.T) {
	var got struct {
		Subject string `json:"subject"`
		From    struct {
			Email string `json:"email"`
		} `json:"from"`
		Personalizations []struct {
			To []struct {
				Email string `json:"email"`
			} `json:"to"`
		} `json:"personalizations"`
	}
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	cfg := &adapter.MailConfig{
		Provider:       adapter.MailProviderSendGrid,
		SendGridAPIKey: "SG.secret",
		Sender:         "sync@example.com",
	}
	n := NewSendGridNotifier(cfg, quietLogger(), WithSendGridHost(srv.URL))
	require.NoError(t, n.Notify(t.Context()))

	assert.Equal(t, "Bearer SG.secret", auth)
	assert.Equal(t, Subject, got.Subject)
	assert.Equal(t, "sync@example.com", got.From.Email)
	require.Len(t, got.Personalizations, 1)
	assert.Equal(t, "sync@example.com", got.Personalizations[0].To[0].Email)
}

func TestSendGridNotifier_RejectedIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"errors":[{"message":"bad key"}]}`)
	}))
	defer srv.Close()

	cfg := &adapter.MailConfig{SendGridAPIKey: "SG.bad", Sender: "a@example.com"}
	err := NewSendGridNotifier(cfg, quietLogger(), WithSendGridHost(srv.URL)).Notify(t.Context())
	require.ErrorIs(t, err, domain.ErrNotifyFailed)
	assert.Contains(t, err.Error(), "401")
}
