// pssgconv converts PSSG scene-graph XML documents to Wavefront OBJ meshes.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/pssgconv/internal/config"
	"github.com/Faultbox/pssgconv/internal/logger"
	"github.com/Faultbox/pssgconv/pkg/convert"
	"github.com/Faultbox/pssgconv/pkg/math"
)

func main() {
	os.Exit(run())
}

func run() int {
	config.ParseFlags()
	args := config.Args()
	if len(args) < 1 {
		printUsage()
		return 1
	}

	switch args[0] {
	case "help", "-h", "--help":
		printUsage()
		return 0
	case "init-config":
		return cmdInitConfig(args[1:])
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: initializing logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	logger.Debug("configuration loaded",
		zap.String("config", config.ConfigPath()),
		zap.String("policy", cfg.Conversion.OnObjectError),
		zap.String("precision", cfg.Output.Precision))

	switch args[0] {
	case "info":
		return cmdInfo(cfg, args[1:])
	case "watch":
		return cmdWatch(cfg, args[1:])
	default:
		return cmdConvert(cfg, args)
	}
}

func printUsage() {
	fmt.Println(`pssgconv - PSSG XML to OBJ mesh converter

Usage:
  pssgconv [flags] <file.xml>...
  pssgconv [flags] <command> [arguments]

Commands:
  info <file.xml>         Show objects, counts, bounds and translation
  watch <dir>             Convert documents as they appear or change
  init-config [path]      Write the default configuration

Flags:
  -config <path>          Config file (.yaml or .toml)
  -out <dir>              Output directory (default: next to each input)
  -strict                 Fail the whole file when any object fails
  -fixed                  Write coordinates with four decimal places
  -debug                  Enable debug logging

Examples:
  pssgconv car_body.xml
  pssgconv -out meshes -fixed *.xml
  pssgconv info car_body.xml
  pssgconv watch ./exports`)
}

func cmdConvert(cfg *config.Config, files []string) int {
	opts := cfg.ConvertOptions(logger.Log)

	var failed error
	for _, path := range files {
		res, err := convert.File(path, opts)
		if res != nil {
			for _, out := range res.Outputs {
				fmt.Println(out)
			}
		}
		if err != nil {
			logger.Error("conversion failed", zap.String("path", path), zap.Error(err))
			failed = multierr.Append(failed, fmt.Errorf("%s: %w", path, err))
		}
	}

	if failed != nil {
		errs := multierr.Errors(failed)
		fmt.Fprintf(os.Stderr, "Error: %d of %d file(s) had failures\n", len(errs), len(files))
		return 1
	}
	return 0
}

func cmdInfo(cfg *config.Config, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: pssgconv info <file.xml>")
		return 1
	}
	path := args[0]

	opts := cfg.ConvertOptions(logger.Log)
	opts.Policy = convert.PolicySkip

	entity, err := convert.Load(path, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Printf("Document: %s\n", path)
	fmt.Printf("Objects:  %d (%d failed)\n", entity.SourceCount, len(entity.Failed))
	fmt.Println()

	for i, o := range entity.Objects {
		ordinal := entity.Ordinals[i]
		out := convert.OutputPath(path, opts.OutputDir, ordinal, entity.SourceCount)

		fmt.Printf("[%d] %s -> %s\n", ordinal, o.Name, filepath.Base(out))
		fmt.Printf("    vertices: %d  uvs: %d  faces: %d\n", len(o.Vertices), len(o.UVs), len(o.Faces))
		if b, ok := o.Bounds(); ok {
			fmt.Printf("    bounds:   %s .. %s (size %s)\n", formatVec(b.Min), formatVec(b.Max), formatVec(b.Size()))
			w := b.Transform(entity.Transform)
			fmt.Printf("    world:    %s .. %s\n", formatVec(w.Min), formatVec(w.Max))
		}
		fmt.Printf("    translation: %s\n", formatVec(o.Translation))
	}

	for _, f := range entity.Failed {
		fmt.Printf("[%d] %s FAILED: %v\n", f.Ordinal, f.Source, f.Err)
	}
	return 0
}

func formatVec(v math.Vec3) string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}

func cmdWatch(cfg *config.Config, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: pssgconv watch <dir>")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := cfg.WatchOptions(logger.Log)
	opts.OnResult = func(path string, res *convert.Result, err error) {
		if res != nil {
			for _, out := range res.Outputs {
				fmt.Println(out)
			}
		}
	}

	if err := convert.Watch(ctx, args[0], opts); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	logger.Info("watch stopped")
	return 0
}

func cmdInitConfig(args []string) int {
	cfg := config.Default()

	var err error
	path := filepath.Join(config.ConfigDir(), "config.yaml")
	if len(args) > 0 {
		path = args[0]
		err = cfg.SaveTo(path)
	} else {
		err = cfg.Save()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Printf("Wrote %s\n", path)
	return 0
}
