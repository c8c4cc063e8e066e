package gateway

import (
	"errors"
	"sync"
	"testing"

	"github.com/agentboard/agentboard/internal/tmux"
)

type fakeTmuxClient struct {
	mu sync.Mutex

	panes       map[string]bool
	pipeCalls   []string
	sentLiteral []string
	sentEnter   []string
	resizes     []string
}

func newFakeTmuxClient(panes ...string) *fakeTmuxClient {
	m := make(map[string]bool, len(panes))
	for _, p := range panes {
		m[p] = true
	}
	return &fakeTmuxClient{panes: m}
}

func (f *fakeTmuxClient) PipePane(target, shellCommand string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pipeCalls = append(f.pipeCalls, target+"|"+shellCommand)
	return nil
}

func (f *fakeTmuxClient) SendKeysLiteral(target, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentLiteral = append(f.sentLiteral, text)
	return nil
}

func (f *fakeTmuxClient) SendEnter(target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentEnter = append(f.sentEnter, target)
	return nil
}

func (f *fakeTmuxClient) ResizePane(target string, width, height int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resizes = append(f.resizes, target)
	return nil
}

func (f *fakeTmuxClient) GetPaneID(target string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.panes[target] {
		return "", tmux.ErrSessionNotFound
	}
	return "%1", nil
}

func TestTerminalProxySwitchToUnknownWindow(t *testing.T) {
	fake := newFakeTmuxClient()
	p := NewTerminalProxy(fake, nil)

	err := p.SwitchTo("missing:@1")
	if err == nil {
		t.Fatal("expected error switching to unknown window")
	}
	var pe *TerminalProxyError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *TerminalProxyError, got %T", err)
	}
	if pe.Code != ErrInvalidWindow {
		t.Errorf("code = %v, want %v", pe.Code, ErrInvalidWindow)
	}
}

func TestTerminalProxyWriteNoopWithoutAttachment(t *testing.T) {
	fake := newFakeTmuxClient()
	p := NewTerminalProxy(fake, nil)

	if err := p.Write("hello\n"); err != nil {
		t.Fatalf("Write on unattached proxy should be a no-op, got %v", err)
	}
	if len(fake.sentLiteral) != 0 {
		t.Errorf("expected no send-keys calls, got %v", fake.sentLiteral)
	}
}

func TestTerminalProxyWriteFragmentsOnNewline(t *testing.T) {
	fake := newFakeTmuxClient("agentboard:@1")
	p := &TerminalProxy{tm: fake, currentWindow: "agentboard:@1"}

	if err := p.Write("foo\nbar"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(fake.sentLiteral) != 2 || fake.sentLiteral[0] != "foo" || fake.sentLiteral[1] != "bar" {
		t.Errorf("sentLiteral = %v, want [foo bar]", fake.sentLiteral)
	}
	if len(fake.sentEnter) != 1 {
		t.Errorf("expected exactly one Enter for the first line, got %d", len(fake.sentEnter))
	}
}

func TestTerminalProxyDisposeIsIdempotent(t *testing.T) {
	fake := newFakeTmuxClient()
	p := NewTerminalProxy(fake, nil)
	p.Dispose()
	p.Dispose()
}

func TestTerminalProxyResizeNoopWithoutAttachment(t *testing.T) {
	fake := newFakeTmuxClient()
	p := NewTerminalProxy(fake, nil)
	if err := p.Resize(80, 24); err != nil {
		t.Fatalf("Resize on unattached proxy should be a no-op, got %v", err)
	}
}
