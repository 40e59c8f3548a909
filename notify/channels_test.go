package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// fakeSNS records publish inputs.
type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{}, nil
}

func TestSNSChannelPublish(t *testing.T) {
	fake := &fakeSNS{}
	ch := NewSNSChannelWithClient(SNSConfig{
		TopicARN: "arn:aws:sns:eu-west-1:123456789012:change-status",
		Kinds:    []Kind{KindChange},
	}, fake)

	if ch.Name() != "sns" {
		t.Fatalf("default name = %q", ch.Name())
	}
	if !ch.Accepts(KindChange) || ch.Accepts(KindHealth) {
		t.Fatal("kind filter not applied")
	}

	msg, err := ch.Render(testEvent(KindChange))
	if err != nil {
		t.Fatal(err)
	}
	if err := ch.Send(context.Background(), msg); err != nil {
		t.Fatal(err)
	}

	if len(fake.inputs) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(fake.inputs))
	}
	in := fake.inputs[0]
	if got := *in.TopicArn; got != "arn:aws:sns:eu-west-1:123456789012:change-status" {
		t.Errorf("topic arn = %q", got)
	}
	if !strings.Contains(*in.Message, "The page has been changed. Go check: https://example.org/news") {
		t.Errorf("unexpected body: %q", *in.Message)
	}
	if in.Subject == nil || *in.Subject == "" {
		t.Error("subject missing")
	}
}

func TestSNSChannelLongSubjectOmitted(t *testing.T) {
	fake := &fakeSNS{}
	ch := NewSNSChannelWithClient(SNSConfig{TopicARN: "arn:x"}, fake)

	long := Message{Subject: strings.Repeat("s", 101), Body: "body"}
	if err := ch.Send(context.Background(), long); err != nil {
		t.Fatal(err)
	}
	if fake.inputs[0].Subject != nil {
		t.Error("subject over 100 chars must be dropped, not truncated")
	}
}

func TestSNSChannelPublishError(t *testing.T) {
	fake := &fakeSNS{err: errors.New("throttled")}
	ch := NewSNSChannelWithClient(SNSConfig{TopicARN: "arn:x"}, fake)
	if err := ch.Send(context.Background(), Message{Body: "b"}); err == nil {
		t.Fatal("expected publish error")
	}
}

func TestEmailChannelSend(t *testing.T) {
	ch, err := NewEmailChannel(EmailConfig{
		Host:     "smtp.example.org",
		Username: "monitor",
		Password: "hunter2",
		From:     "monitor@example.org",
		To:       []string{"ops@example.org", "dev@example.org"},
	})
	if err != nil {
		t.Fatal(err)
	}

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	var gotAuth smtp.Auth
	ch.send = func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, msg
		return nil
	}

	if err := ch.Send(context.Background(), Message{Subject: "Page changed", Body: "check the page"}); err != nil {
		t.Fatal(err)
	}
	if gotAddr != "smtp.example.org:587" {
		t.Errorf("addr = %q", gotAddr)
	}
	if gotAuth == nil {
		t.Error("expected PLAIN auth when username set")
	}
	if gotFrom != "monitor@example.org" || len(gotTo) != 2 {
		t.Errorf("envelope = %q -> %v", gotFrom, gotTo)
	}
	raw := string(gotMsg)
	for _, want := range []string{
		"Subject: Page changed\r\n",
		"To: ops@example.org, dev@example.org\r\n",
		"\r\n\r\ncheck the page",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("message missing %q:\n%s", want, raw)
		}
	}
}

func TestEmailChannelStalledServer(t *testing.T) {
	// A server that accepts the connection but never sends the SMTP greeting
	// must not pin the attempt past ctx.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	ch, err := NewEmailChannel(EmailConfig{
		Host: "127.0.0.1",
		Port: addr.Port,
		From: "a@example.org",
		To:   []string{"b@example.org"},
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := ch.Send(ctx, Message{Body: "b"}); err == nil {
		t.Fatal("expected an error from a stalled server")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("send outlived its context: %v", elapsed)
	}
}

func TestEmailChannelConfigValidation(t *testing.T) {
	if _, err := NewEmailChannel(EmailConfig{Host: "h"}); err == nil {
		t.Fatal("expected error for missing from/to")
	}
}

func TestWebhookChannelSend(t *testing.T) {
	var (
		gotBody []byte
		gotSig  string
		gotSubj string
		gotCT   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Signature-256")
		gotSubj = r.Header.Get("X-Vigil-Subject")
		gotCT = r.Header.Get("Content-Type")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	ch, err := NewWebhookChannel(WebhookConfig{URL: srv.URL, Secret: "topsecret"})
	if err != nil {
		t.Fatal(err)
	}

	ev := testEvent(KindChange)
	msg, err := ch.Render(ev)
	if err != nil {
		t.Fatal(err)
	}
	if err := ch.Send(context.Background(), msg); err != nil {
		t.Fatal(err)
	}

	if gotCT != "application/json" {
		t.Errorf("content-type = %q", gotCT)
	}
	if gotSubj == "" {
		t.Error("subject header missing")
	}

	var decoded Event
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("body is not the event envelope: %v", err)
	}
	if decoded.ID != ev.ID || decoded.Kind != KindChange || decoded.URL != ev.URL {
		t.Fatalf("envelope mismatch: %+v", decoded)
	}

	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}
}

func TestWebhookChannelNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	ch, err := NewWebhookChannel(WebhookConfig{URL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if err := ch.Send(context.Background(), Message{Body: "{}"}); err == nil {
		t.Fatal("expected error on http 502")
	}
}

func TestRenderText(t *testing.T) {
	change := testEvent(KindChange)
	change.PreviousFingerprint = strings.Repeat("a", 64)
	change.NewFingerprint = strings.Repeat("b", 64)
	msg := renderText(change)
	if !strings.HasPrefix(msg.Body, "The page has been changed. Go check: https://example.org/news") {
		t.Errorf("change body = %q", msg.Body)
	}
	if !strings.Contains(msg.Body, strings.Repeat("a", 12)) || strings.Contains(msg.Body, strings.Repeat("a", 13)) {
		t.Error("fingerprints should be shortened to 12 chars")
	}

	health := testEvent(KindHealth)
	health.Status = "alive"
	msg = renderText(health)
	if !strings.Contains(msg.Body, "still monitoring") {
		t.Errorf("alive body = %q", msg.Body)
	}

	health.Note = "Bot has started to monitor"
	if got := renderText(health).Body; got != "Bot has started to monitor" {
		t.Errorf("note should override body, got %q", got)
	}
}
