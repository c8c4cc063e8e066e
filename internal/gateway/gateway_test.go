package gateway

import (
	"testing"
	"time"

	"github.com/agentboard/agentboard/internal/registry"
)

func TestGatewayEnterLockExpires(t *testing.T) {
	g := NewGateway(registry.New(), nil, nil, nil, "agentboard", false, nil)
	g.lockEnter("agentboard:@1")

	if !g.IsLastUserMessageLocked("agentboard:@1") {
		t.Fatal("expected window to be locked immediately after lockEnter")
	}
	if g.IsLastUserMessageLocked("agentboard:@2") {
		t.Fatal("unrelated window should not be locked")
	}

	g.lockMu.Lock()
	g.enterLocks["agentboard:@1"] = time.Now().Add(-time.Second)
	g.lockMu.Unlock()

	if g.IsLastUserMessageLocked("agentboard:@1") {
		t.Fatal("expected lock to have expired")
	}
}

func TestContainsEnter(t *testing.T) {
	cases := map[string]bool{
		"hello":    false,
		"hello\n":  true,
		"hel\rlo":  true,
		"":         false,
	}
	for input, want := range cases {
		if got := containsEnter(input); got != want {
			t.Errorf("containsEnter(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestSessionNameFromTarget(t *testing.T) {
	cases := map[string]string{
		"agentboard:@1": "agentboard",
		"my-session:@3": "my-session",
		"no-colon":      "no-colon",
	}
	for target, want := range cases {
		if got := sessionNameFromTarget(target); got != want {
			t.Errorf("sessionNameFromTarget(%q) = %q, want %q", target, got, want)
		}
	}
}
