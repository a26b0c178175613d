// Command chat is a terminal chat client. It talks to a completion gateway
// when one answers at startup and falls back to canned demo replies otherwise.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/zhengjr9/edgechat/internal/api"
	"github.com/zhengjr9/edgechat/internal/client"
	"github.com/zhengjr9/edgechat/internal/config"
	"github.com/zhengjr9/edgechat/internal/demo"
	"github.com/zhengjr9/edgechat/internal/probe"
	"github.com/zhengjr9/edgechat/internal/session"
	"github.com/zhengjr9/edgechat/internal/telemetry"
)

const help = `Commands:
  /reset   clear the conversation
  /mode    show whether replies are live or demo
  /models  list the gateway's models (live mode)
  /quit    exit`

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	_, logCloser, err := telemetry.InitLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	rules := demo.DefaultRules()
	if cfg.DemoRules != "" {
		if rules, err = demo.LoadRules(cfg.DemoRules); err != nil {
			slog.Error("failed to load demo rules", "path", cfg.DemoRules, "error", err)
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gwClient := client.New(cfg.GatewayURL, cfg.RequestTimeout)
	ctl := session.New(cfg,
		gwClient,
		probe.New(cfg.GatewayURL, cfg.ProbeTimeout),
		demo.NewResponder(rules),
	)

	r := &renderer{out: os.Stdout}
	unsubscribe := ctl.Subscribe(r.render)
	defer unsubscribe()

	fmt.Fprintf(os.Stdout, "Connecting to %s ...\n", cfg.GatewayURL)
	ctl.Initialize(ctx)
	fmt.Fprintln(os.Stdout, "Type a message, or /help for commands.")

	if err := repl(ctx, os.Stdin, os.Stdout, ctl, gwClient); err != nil {
		slog.Error("input error", "error", err)
		os.Exit(1)
	}
}

func repl(ctx context.Context, in io.Reader, out io.Writer, ctl *session.Controller, gw *client.Client) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
		scanErr <- sc.Err()
		close(lines)
	}()

	for {
		fmt.Fprint(out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/help":
			fmt.Fprintln(out, help)
			continue
		case "/reset":
			ctl.Reset()
			continue
		case "/mode":
			fmt.Fprintf(out, "mode: %s\n", ctl.Mode())
			continue
		case "/models":
			if ctl.Mode() != session.ModeLive {
				fmt.Fprintln(out, "no gateway in demo mode")
				continue
			}
			models, err := gw.Models(ctx)
			if err != nil {
				fmt.Fprintln(out, "could not list models:", err)
				continue
			}
			if len(models) == 0 {
				fmt.Fprintln(out, "no models installed")
			}
			for _, m := range models {
				fmt.Fprintln(out, " ", m)
			}
			continue
		}

		if err := ctl.Submit(ctx, line); err != nil {
			fmt.Fprintln(out, err)
		}
	}
}

// renderer prints controller events. User messages are already on screen as
// typed input, so only assistant turns are echoed.
type renderer struct {
	out io.Writer
}

func (r *renderer) render(ev session.Event) {
	switch ev.Kind {
	case session.EventModeChanged:
		if ev.Mode == session.ModeLive {
			fmt.Fprintln(r.out, "Connected. Replies come from the live model.")
		} else {
			fmt.Fprintln(r.out, "Gateway unavailable. Running in demo mode with canned replies.")
		}
	case session.EventMessageAppended:
		if ev.Message.Role != api.RoleUser {
			fmt.Fprintf(r.out, "assistant: %s\n", ev.Message.Content)
		}
	case session.EventPendingChanged:
		if ev.Pending {
			fmt.Fprintln(r.out, "...")
		}
	case session.EventTranscriptReset:
		fmt.Fprintln(r.out, "Conversation cleared.")
	}
}
