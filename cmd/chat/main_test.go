package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/zhengjr9/edgechat/internal/client"
	"github.com/zhengjr9/edgechat/internal/config"
	"github.com/zhengjr9/edgechat/internal/demo"
	"github.com/zhengjr9/edgechat/internal/probe"
	"github.com/zhengjr9/edgechat/internal/session"
)

func TestREPL_DemoMode(t *testing.T) {
	cfg := &config.Client{ProbeTimeout: 200 * time.Millisecond, RequestTimeout: time.Second}
	// Nothing listens on port 1, so the probe fails and the session runs in demo mode.
	gw := client.New("http://127.0.0.1:1", cfg.RequestTimeout)
	ctl := session.New(cfg, gw, probe.New("http://127.0.0.1:1", cfg.ProbeTimeout), demo.NewResponder(demo.DefaultRules()))

	var out bytes.Buffer
	r := &renderer{out: &out}
	ctl.Subscribe(r.render)
	ctl.Initialize(context.Background())

	in := strings.NewReader("Tell me about your skills\n/mode\n/models\n/reset\n/quit\nnever read\n")
	if err := repl(context.Background(), in, &out, ctl, gw); err != nil {
		t.Fatalf("repl: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"demo mode",
		"assistant: Core skills",
		"mode: demo",
		"no gateway in demo mode",
		"Conversation cleared.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if len(ctl.Messages()) != 0 {
		t.Errorf("transcript should be empty after /reset")
	}
}
