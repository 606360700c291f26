package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"focusd/internal/core"
	"focusd/internal/jobs"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := core.NewApp(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if err := app.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}
	// Best effort; a no-op outside systemd.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	// A fatal supervisor error unblocks Wait the same way a signal does;
	// app.Stop then surfaces the error and the process exits non-zero.
	go func() {
		<-app.Done()
		cancel()
	}()

	// Blocks until SIGINT/SIGTERM, then stops the job families.
	lc := jobs.NewLifecycle(app.Manager(), app.Logger())
	if err := lc.Wait(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "shutdown:", err)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		fmt.Fprintln(os.Stderr, "shutdown:", err)
		os.Exit(1)
	}
}
