// Command scodata-init prepares a data store for first use by clearing every
// collection and stored file. It refuses to run without -yes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"scodata/internal/config"
	"scodata/internal/core"
	"scodata/internal/logger"
)

var exitFunc = os.Exit

func main() {
	code := cli(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("scodata-init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var configPath string
	var confirm bool
	fs.StringVar(&configPath, "config", "", "path to YAML config (default $"+config.EnvConfigPath+")")
	fs.BoolVar(&confirm, "yes", false, "confirm deleting all stored resources and files")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if !confirm {
		_, _ = fmt.Fprintln(stderr, "scodata-init deletes every resource and file; rerun with -yes to confirm")
		return 2
	}
	if err := run(ctx, configPath, stdout); err != nil {
		_, _ = fmt.Fprintf(stderr, "init failed: %v\n", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, configPath string, stdout io.Writer) (err error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()
	rt, err := cfg.ServiceOptions(ctx, log, stdout)
	if err != nil {
		return err
	}
	svc, err := core.Open(ctx, cfg.Storage(), rt.Options...)
	if err != nil {
		return errors.Join(err, rt.Shutdown(ctx))
	}
	defer func() {
		err = errors.Join(err, svc.Close(), rt.Shutdown(ctx))
	}()
	if err := svc.Reset(ctx); err != nil {
		return err
	}
	log.Info("store initialized", "metadata", svc.Metadata().Driver(), "files", svc.Blobs().Driver())
	_, err = fmt.Fprintf(stdout, "initialized %s metadata store and %s file store\n", svc.Metadata().Driver(), svc.Blobs().Driver())
	return err
}
