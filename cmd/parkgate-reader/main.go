// parkgate-reader is a field reader simulator.  It reads card UIDs from
// stdin, one per line, posts each as a scan event for its reader and
// prints the gate's answer.  Type "exit" or close stdin to stop.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, in io.Reader, out io.Writer) error {
	var (
		readerID  string
		server    string
		action    string
		useProto  bool
		heartbeat bool
		timeout   time.Duration
	)

	flagSet := pflag.NewFlagSet("parkgate-reader", pflag.ContinueOnError)
	flagSet.SetOutput(out)
	flagSet.StringVar(&readerID, "reader-id", "", "reader ID registered on the server (required)")
	flagSet.StringVar(&server, "server", "http://localhost:8080", "gate server base URL")
	flagSet.StringVar(&action, "action", "enter", `scan action, "enter" or "exit"`)
	flagSet.BoolVar(&useProto, "proto", false, "send protobuf instead of JSON")
	flagSet.BoolVar(&heartbeat, "heartbeat", true, "send a heartbeat before the first scan")
	flagSet.DurationVar(&timeout, "timeout", 10*time.Second, "per-request timeout")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if readerID == "" {
		return fmt.Errorf("--reader-id is required")
	}
	if action != "enter" && action != "exit" {
		return fmt.Errorf(`--action must be "enter" or "exit", got %q`, action)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := newClient(server, readerID, useProto, timeout)

	fmt.Fprintf(out, "%s\n  Reader %s (%s gate)\n  Server %s\n%s\n", banner, readerID, strings.ToUpper(action), server, banner)

	if heartbeat {
		hb, err := c.Heartbeat(ctx)
		if err != nil {
			fmt.Fprintf(out, "heartbeat failed: %v\n", err)
		} else {
			fmt.Fprintf(out, "registered as %s reader, server time %s\n", hb.Direction, hb.ServerTime)
		}
	}

	fmt.Fprintln(out, `Ready to scan cards. Type "exit" to quit.`)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		uid := strings.TrimSpace(sc.Text())
		if strings.EqualFold(uid, "exit") {
			break
		}
		if uid == "" {
			continue
		}

		resp, err := c.Scan(ctx, uid, action)
		if err != nil {
			fmt.Fprintf(out, "[%s] ERROR: %v\n", time.Now().Format(time.DateTime), err)
			continue
		}
		printResult(out, resp)

		if ctx.Err() != nil {
			break
		}
	}
	return sc.Err()
}
