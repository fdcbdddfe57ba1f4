package subscriber

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/byt3hx/ollama-ai-analyzer/analyzer"
	"github.com/byt3hx/ollama-ai-analyzer/orchestrator"
	"github.com/byt3hx/ollama-ai-analyzer/session"
	"github.com/byt3hx/ollama-ai-analyzer/settings"
	"github.com/byt3hx/ollama-ai-analyzer/stream"
	"go.uber.org/zap"
)

type fakeSubmitter struct {
	calls int
	req   analyzer.AnalysisRequest
	err   error
}

func (f *fakeSubmitter) SubmitFor(sessionID string, req analyzer.AnalysisRequest, obs orchestrator.Observer) (string, error) {
	f.calls++
	f.req = req
	if f.err != nil {
		return "", f.err
	}
	return "job-42", nil
}

func newIntake(t *testing.T, sub *fakeSubmitter) *Intake {
	t.Helper()
	cfg, err := settings.Load(filepath.Join(t.TempDir(), "settings.yaml"), nil)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	return &Intake{
		Sessions: session.NewStore(sub, nil),
		Settings: cfg,
		Feeds:    stream.NewRegistry(4),
	}
}

func message(t *testing.T, p CapturePayload) string {
	t.Helper()
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestProcessCreatesSession(t *testing.T) {
	sub := &fakeSubmitter{}
	in := newIntake(t, sub)

	in.Process(zap.NewNop(), message(t, CapturePayload{
		Request:  "GET /login HTTP/1.1\r\nHost: example.com",
		Response: "HTTP/1.1 302 Found",
	}))

	list := in.Sessions.List()
	if len(list) != 1 {
		t.Fatalf("want 1 session, got %d", len(list))
	}
	sess := list[0]
	if sess.ResponseText != "HTTP/1.1 302 Found" || sess.CustomInstruction != session.DefaultInstruction {
		t.Fatalf("unexpected session %+v", sess)
	}
	if sub.calls != 0 {
		t.Fatal("capture without analyze must not submit")
	}
}

func TestProcessAnalyzeRegistersFeed(t *testing.T) {
	sub := &fakeSubmitter{}
	in := newIntake(t, sub)

	in.Process(zap.NewNop(), message(t, CapturePayload{
		Request:     "POST /api/users HTTP/1.1",
		Instruction: "look for IDOR",
		Analyze:     true,
	}))

	if sub.calls != 1 || sub.req.CustomInstruction != "look for IDOR" || sub.req.ModelName != settings.DefaultModel {
		t.Fatalf("unexpected submission %+v", sub.req)
	}
	if _, ok := in.Feeds.Get("job-42"); !ok {
		t.Fatal("feed should be registered under the job id")
	}
	if got := in.Sessions.List()[0].LastJobID; got != "job-42" {
		t.Fatalf("last job id %q", got)
	}
}

func TestProcessBusyKeepsSession(t *testing.T) {
	sub := &fakeSubmitter{err: orchestrator.ErrBusy}
	in := newIntake(t, sub)

	in.Process(zap.NewNop(), message(t, CapturePayload{Request: "GET / HTTP/1.1", Analyze: true}))

	if len(in.Sessions.List()) != 1 {
		t.Fatal("session should be kept when the analyzer is busy")
	}
	if _, ok := in.Feeds.Get("job-42"); ok {
		t.Fatal("no feed for a rejected job")
	}
}

func TestProcessIgnoresEmptyRequest(t *testing.T) {
	in := newIntake(t, &fakeSubmitter{})
	in.Process(zap.NewNop(), message(t, CapturePayload{Request: "  ", Response: "HTTP/1.1 200 OK"}))
	if len(in.Sessions.List()) != 0 {
		t.Fatal("capture without request text should be ignored")
	}
}

func TestProcessPlainTextMessage(t *testing.T) {
	in := newIntake(t, &fakeSubmitter{})
	in.Process(zap.NewNop(), "GET /robots.txt HTTP/1.1")

	list := in.Sessions.List()
	if len(list) != 1 || list[0].RequestText != "GET /robots.txt HTTP/1.1" {
		t.Fatalf("plain message should become the request text, got %+v", list)
	}
}
