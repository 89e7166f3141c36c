package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"newsdesk/internal/bootstrap"
	"newsdesk/internal/domain/brief"
	"newsdesk/internal/domain/selection"
	"newsdesk/pkg/errors"
)

type options struct {
	userID    string
	topics    string
	count     int
	exclude   string
	regions   string
	maxAge    time.Duration
	more      bool
	format    string
	feedPath  string
	feedTopic string
	serve     bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("newsdesk", flag.ContinueOnError)
	fs.StringVar(&o.userID, "user", "demo", "user id")
	fs.StringVar(&o.topics, "topics", "ai_policy=0.9,geopolitics=0.5", "comma separated topic=weight pairs")
	fs.IntVar(&o.count, "count", 5, "number of stories to select")
	fs.StringVar(&o.exclude, "exclude", "", "comma separated sources to skip")
	fs.StringVar(&o.regions, "regions", "", "comma separated region tags for this session")
	fs.DurationVar(&o.maxAge, "max-age", 0, "drop stories older than this (0 keeps all)")
	fs.BoolVar(&o.more, "more", false, "follow up with a request served from the reserve")
	fs.StringVar(&o.format, "format", "json", "output format: json or text")
	fs.StringVar(&o.feedPath, "feed", "", "RSS/Atom/JSON feed file read by an extra feed agent")
	fs.StringVar(&o.feedTopic, "feed-topic", "", "topic the feed covers (default: the dominant brief topic)")
	fs.BoolVar(&o.serve, "serve", false, "keep running workers and /metrics until interrupted")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.format != "json" && o.format != "text" {
		return o, errors.NewValidationError("format", "must be json or text", o.format)
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	b, err := buildBrief(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	c := bootstrap.NewContainer()
	c.MustInit()

	err = execute(c, b, opts, os.Stdout)
	if err != nil {
		c.Log.Errorw("newsdesk failed", "error", err)
	}
	c.Shutdown()
	if err != nil {
		os.Exit(1)
	}
}

// execute registers the agents, starts the container and answers the brief.
// The caller shuts the container down on every path.
func execute(c *bootstrap.Container, b brief.Brief, opts options, out io.Writer) error {
	if err := registerDemoAgents(c); err != nil {
		return errors.Wrap(err, "register agents")
	}
	if opts.feedPath != "" {
		if err := registerFeedAgent(c, opts.feedPath, opts.feedTopic, b.DominantTopic()); err != nil {
			return errors.Wrap(err, "register feed agent")
		}
	}

	if err := c.Start(); err != nil {
		return errors.Wrap(err, "start")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, c, b, opts, out)
	if opts.serve {
		c.Log.Info("Serving until interrupted")
		<-ctx.Done()
	}
	return err
}

func run(ctx context.Context, c *bootstrap.Container, b brief.Brief, opts options, out io.Writer) error {
	sel, err := c.Coordinator.Handle(ctx, b)
	if printErr := render(out, opts.format, sel); printErr != nil {
		return printErr
	}
	if err != nil {
		return err
	}

	if !opts.more {
		return nil
	}
	next, err := c.Coordinator.More(ctx, b)
	if printErr := render(out, opts.format, next); printErr != nil {
		return printErr
	}
	return err
}

func render(out io.Writer, format string, sel selection.Selection) error {
	if format == "text" {
		_, err := io.WriteString(out, summarize(sel, time.Now()))
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(sel)
}
