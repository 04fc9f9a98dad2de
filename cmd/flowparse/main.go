package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/flowparse/internal/config"
	"github.com/standardbeagle/flowparse/internal/debug"
	"github.com/standardbeagle/flowparse/internal/discover"
	"github.com/standardbeagle/flowparse/internal/dispatch"
	"github.com/standardbeagle/flowparse/internal/fkey"
	"github.com/standardbeagle/flowparse/internal/heap"
	"github.com/standardbeagle/flowparse/internal/mcp"
	"github.com/standardbeagle/flowparse/internal/popts"
	"github.com/standardbeagle/flowparse/internal/reducer"
	"github.com/standardbeagle/flowparse/internal/remoteexec"
	"github.com/standardbeagle/flowparse/internal/results"
	"github.com/standardbeagle/flowparse/internal/version"
)

func main() {
	app := &cli.App{
		Name:    "flowparse",
		Usage:   "Incremental type-checking parse service for a Flow-annotated JavaScript tree",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path",
				Value:   "flowparse.toml",
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root to walk",
				Value:   ".",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Glob patterns to include (relative to root); default is everything not excluded",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Glob patterns to exclude, added to the built-in node_modules/.git/dist/build set",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Parallel reducer worker count",
				Value: 4,
			},
			&cli.IntFlag{
				Name:  "bucket-size",
				Usage: "Files per dispatch bucket",
				Value: 32,
			},
			&cli.BoolFlag{
				Name:  "profile",
				Usage: "Log per-run dispatch counters regardless of distributed mode",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "parse",
				Usage:  "Cold parse every discovered file",
				Action: runCommand(opParse),
			},
			{
				Name:   "reparse",
				Usage:  "Incrementally reparse, skipping files whose content hash is unchanged",
				Action: runCommand(opReparse),
			},
			{
				Name:   "ensure-parsed",
				Usage:  "Parse only files currently missing a heap AST",
				Action: runCommand(opEnsureParsed),
			},
			{
				Name:   "watch",
				Usage:  "Reparse on every filesystem change under root until interrupted",
				Action: watchCommand,
			},
			{
				Name:   "mcp",
				Usage:  "Start the MCP server over stdio",
				Action: mcpCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "flowparse: %v\n", err)
		os.Exit(1)
	}
}

type op int

const (
	opParse op = iota
	opReparse
	opEnsureParsed
)

// sharedHeap is process-wide so watch mode can reparse against the same
// heap that an initial parse populated.
var sharedHeap = heap.New()

func buildDriver(c *cli.Context, global popts.GlobalOptions) (*dispatch.Driver, string, error) {
	root, err := filepath.Abs(c.String("root"))
	if err != nil {
		return nil, "", fmt.Errorf("resolve root: %w", err)
	}

	resolver := func(key fkey.FileKey, hint reducer.Hint) fkey.ModuleName {
		rel, err := filepath.Rel(root, key.Path())
		if err != nil {
			rel = key.Path()
		}
		return fkey.ModuleName(filepath.ToSlash(rel))
	}

	driver := &dispatch.Driver{
		Heap: sharedHeap,
		Read: func(key fkey.FileKey) ([]byte, error) {
			return os.ReadFile(key.Path())
		},
		Workers:    c.Int("workers"),
		BucketSize: c.Int("bucket-size"),
		Options:    popts.Resolve(global, popts.Overrides{}),
		Uploader:   remoteexec.NewCachedUploader(noopUploader{}, 10*time.Minute, 4096),
		ResolveMod: resolver,
		MaxHeader:  4096,
		Profile:    c.Bool("profile"),
		Progress: func(total, finished int) {
			if finished == total {
				debug.LogDispatch("progress: %d/%d files\n", finished, total)
			}
		},
	}
	return driver, root, nil
}

type noopUploader struct{}

func (noopUploader) UploadBlob(ctx context.Context, blob []byte) (remoteexec.Digest, error) {
	return remoteexec.Digest(""), nil
}

func discoverKeys(root string, c *cli.Context) ([]fkey.FileKey, error) {
	excludes := append(append([]string{}, discover.DefaultExcludes...), c.StringSlice("exclude")...)
	paths, err := discover.Walk(root, c.StringSlice("include"), excludes)
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	keys := make([]fkey.FileKey, len(paths))
	for i, p := range paths {
		keys[i] = mcp.ClassifyPath(p)
	}
	return keys, nil
}

func runCommand(which op) cli.ActionFunc {
	return func(c *cli.Context) error {
		global, err := config.Load(c.String("config"))
		if err != nil {
			return err
		}
		driver, root, err := buildDriver(c, global)
		if err != nil {
			return err
		}
		keys, err := discoverKeys(root, c)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		start := time.Now()
		res, runErr := dispatchFor(ctx, driver, which, keys)
		if runErr != nil {
			return runErr
		}
		printSummary(commandName(which), res, time.Since(start))
		return nil
	}
}

func dispatchFor(ctx context.Context, d *dispatch.Driver, which op, keys []fkey.FileKey) (*resultSummary, error) {
	switch which {
	case opParse:
		res, err := d.Parse(ctx, keys)
		return summarize(res), err
	case opReparse:
		res, err := d.Reparse(ctx, keys)
		return summarize(res), err
	default:
		res, err := d.EnsureParsed(ctx, keys)
		return summarize(res), err
	}
}

func commandName(which op) string {
	switch which {
	case opParse:
		return "parse"
	case opReparse:
		return "reparse"
	default:
		return "ensure-parsed"
	}
}

type resultSummary struct {
	Parsed, Unparsed, Changed, Unchanged, NotFound, PackageJSON, Failed, DirtyModules int
}

func summarize(res *results.Results) *resultSummary {
	if res == nil {
		return &resultSummary{}
	}
	return &resultSummary{
		Parsed:       len(res.Parsed),
		Unparsed:     len(res.Unparsed),
		Changed:      len(res.Changed),
		Unchanged:    len(res.Unchanged),
		NotFound:     len(res.NotFound),
		PackageJSON:  len(res.PackageKeys),
		Failed:       len(res.FailedKeys),
		DirtyModules: len(res.DirtyModules),
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func printSummary(op string, s *resultSummary, elapsed time.Duration) {
	fmt.Printf("%s: parsed=%d unparsed=%d changed=%d unchanged=%d not_found=%d package_json=%d failed=%d dirty_modules=%d (%.3fs)\n",
		op, s.Parsed, s.Unparsed, s.Changed, s.Unchanged, s.NotFound, s.PackageJSON, s.Failed, s.DirtyModules, elapsed.Seconds())
}

func watchCommand(c *cli.Context) error {
	global, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	driver, root, err := buildDriver(c, global)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	initial, err := discoverKeys(root, c)
	if err != nil {
		return err
	}
	if _, err := driver.Parse(ctx, initial); err != nil {
		return fmt.Errorf("initial parse: %w", err)
	}
	fmt.Printf("watch: initial parse of %d files complete, watching %s\n", len(initial), root)

	excludes := append(append([]string{}, discover.DefaultExcludes...), c.StringSlice("exclude")...)
	w, err := discover.NewWatcher(root, excludes, 300*time.Millisecond, func(paths []string) {
		keys := make([]fkey.FileKey, len(paths))
		for i, p := range paths {
			keys[i] = mcp.ClassifyPath(p)
		}
		res, err := driver.Reparse(ctx, keys)
		if err != nil {
			debug.LogDispatch("watch: reparse error: %v\n", err)
			return
		}
		s := summarize(res)
		printSummary("watch-reparse", s, 0)
	})
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	w.Run(ctx)
	return nil
}

func mcpCommand(c *cli.Context) error {
	global, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	driver, _, err := buildDriver(c, global)
	if err != nil {
		return err
	}

	srv := mcp.NewServer(driver)
	ctx, cancel := signalContext()
	defer cancel()
	return srv.Start(ctx)
}
