package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/syncs"
	"github.com/hashicorp/go-multierror"
	"github.com/jessevdk/go-flags"
	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/soratab/soratab/pkg/sender"
)

type options struct {
	PositionalArgs struct {
		Message string `positional-arg-name:"message" description:"message to send, cpu usage report if omitted"`
	} `positional-args:"yes" positional-optional:"yes"`

	HTTP string `long:"http" env:"SORATAB_SEND_HTTP" description:"harvest http endpoint, overrides the default"`
	UDP  string `long:"udp" env:"SORATAB_SEND_UDP" description:"harvest udp endpoint, implies udp transport"`

	Repeat     int           `long:"repeat" default:"1" description:"number of times to send the message"`
	Concurrent int           `long:"concurrent" default:"1" description:"number of concurrent sends"`
	Interval   time.Duration `long:"interval" default:"1s" description:"pause between repeated sends"`
	Timeout    time.Duration `long:"timeout" default:"30s" description:"overall timeout"`

	Dbg bool `long:"dbg" description:"debug mode"`
}

var revision = "latest"

func main() {
	fmt.Printf("harvest-send %s\n", revision)

	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}
	setupLog(opts.Dbg)

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Printf("failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	msg := opts.PositionalArgs.Message
	if msg == "" {
		var err error
		if msg, err = cpuReport(ctx); err != nil {
			return fmt.Errorf("can't make cpu report: %w", err)
		}
	}

	snd := &sender.Sender{HTTPEndpoint: opts.HTTP, UDPEndpoint: opts.UDP}
	send := func(ctx context.Context) error { return snd.SendHTTP(ctx, msg) }
	transport := "http"
	if opts.UDP != "" {
		send = func(context.Context) error { return snd.SendUDP(msg) }
		transport = "udp"
	}
	log.Printf("[INFO] sending %d message(s) over %s, concurrency %d", opts.Repeat, transport, opts.Concurrent)

	if opts.Concurrent <= 1 {
		return sendSequential(ctx, send, opts.Repeat, opts.Interval)
	}
	return sendConcurrent(ctx, send, opts.Repeat, opts.Concurrent)
}

// sendSequential pushes messages one by one with a pause in between
func sendSequential(ctx context.Context, send func(context.Context) error, repeat int, interval time.Duration) error {
	res := &multierror.Error{}
	for i := 0; i < repeat; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
		if err := send(ctx); err != nil {
			log.Printf("[WARN] send %d failed: %v", i+1, err)
			res = multierror.Append(res, fmt.Errorf("send %d: %w", i+1, err))
			continue
		}
		log.Printf("[DEBUG] send %d completed", i+1)
	}
	return res.ErrorOrNil()
}

// sendConcurrent pushes messages from a bounded group of workers
func sendConcurrent(ctx context.Context, send func(context.Context) error, repeat, concurrent int) error {
	wg := syncs.NewErrSizedGroup(concurrent, syncs.Context(ctx), syncs.Preemptive)
	for i := 0; i < repeat; i++ {
		i := i
		wg.Go(func() error {
			if err := send(ctx); err != nil {
				return fmt.Errorf("send %d: %w", i+1, err)
			}
			log.Printf("[DEBUG] send %d completed", i+1)
			return nil
		})
	}
	return wg.Wait()
}

// cpuReport makes a json message with per-core cpu usage, the default
// payload when nothing is passed on the command line.
func cpuReport(ctx context.Context) (string, error) {
	percents, err := cpu.PercentWithContext(ctx, time.Second, true)
	if err != nil {
		return "", fmt.Errorf("can't get cpu usage: %w", err)
	}
	report := struct {
		Host string    `json:"host"`
		CPU  []float64 `json:"cpu"`
	}{CPU: percents}
	report.Host, _ = os.Hostname()

	b, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("can't marshal cpu report: %w", err)
	}
	return string(b), nil
}

func setupLog(dbg bool) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
