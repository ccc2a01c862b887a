// Command graphmix loads protocol files, solves them for transfer volumes and
// renders, archives or simulates the result.
//
//	graphmix [flags] solve FILE
//	graphmix [flags] doc FILE
//	graphmix [flags] tikz FILE
//	graphmix [flags] run FILE
//	graphmix [flags] chemical NAME
//	graphmix [flags] latest NAME
//
// Storage, archive and PubChem settings come from GRAPHMIX_* environment
// variables; see internal/app.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"graphmix/internal/app"
	"graphmix/internal/archive"
	"graphmix/internal/blob"
	"graphmix/internal/core"
	"graphmix/internal/ctxlog"
	"graphmix/internal/hclproto"
	"graphmix/internal/pubchem"
	"graphmix/internal/registry"
	"graphmix/pkg/protocol"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var (
	exitFunc = os.Exit
	getenv   = os.Getenv
)

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

// varFlags collects repeated -var name=value pairs.
type varFlags map[string]string

func (v varFlags) String() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k+"="+v[k])
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func (v varFlags) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("want name=value, got %q", s)
	}
	v[name] = value
	return nil
}

type options struct {
	logLevel  string
	logFormat string
	format    string
	vars      varFlags
	offline   bool
	archive   string
	reuseTip  bool
	tips      int
	skipCheck bool
	metrics   bool
}

const usage = `usage: graphmix [flags] <command> <arg>

commands:
  solve FILE      solve a protocol file and print transfers and initial volumes
  doc FILE        print the solved protocol document
  tikz FILE       print the protocol graph as a TikZ picture
  run FILE        simulate the transfers on a liquid handler
  chemical NAME   look a chemical up in the registry
  latest NAME     print the newest archived revision of a protocol

flags:
`

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("graphmix", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	opts := options{vars: varFlags{}}
	fs.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error (default from GRAPHMIX_LOG_LEVEL or info)")
	fs.StringVar(&opts.logFormat, "log-format", "", "log format: text or json (default from GRAPHMIX_LOG_FORMAT or text)")
	fs.StringVar(&opts.format, "format", "", "document format: json or yaml")
	fs.Var(opts.vars, "var", "protocol file variable name=value (repeatable)")
	fs.BoolVar(&opts.offline, "offline", false, "never query PubChem for unknown chemicals")
	fs.StringVar(&opts.archive, "archive", "", "archive the solved protocol under this name")
	fs.BoolVar(&opts.reuseTip, "reuse-tip", false, "keep the tip between transfers with matching solutes")
	fs.IntVar(&opts.tips, "tips", 96, "wells in the simulated tip rack")
	fs.BoolVar(&opts.skipCheck, "skip-volume-check", false, "do not fail on max or dead volume violations")
	fs.BoolVar(&opts.metrics, "metrics", false, "print operation metrics to stderr on exit")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return exitUsage
	}
	cmd, arg := fs.Arg(0), fs.Arg(1)

	cfg, err := config(opts)
	if err != nil {
		fmt.Fprintf(stderr, "graphmix: %v\n", err)
		return exitUsage
	}
	logger := app.NewLogger(cfg.LogLevel, cfg.LogFormat, stderr)
	ctx := ctxlog.WithLogger(context.Background(), logger)

	e, err := newEnv(ctx, cfg, opts)
	if err != nil {
		fmt.Fprintf(stderr, "graphmix: %v\n", err)
		return exitError
	}
	defer e.close(ctx)

	var runErr error
	switch cmd {
	case "solve":
		runErr = e.solve(ctx, arg, stdout)
	case "doc":
		runErr = e.doc(ctx, arg, stdout)
	case "tikz":
		runErr = e.tikz(ctx, arg, stdout)
	case "run":
		runErr = e.run(ctx, arg, stdout)
	case "chemical":
		runErr = e.chemical(ctx, arg, stdout)
	case "latest":
		runErr = e.latest(ctx, arg, stdout)
	default:
		fmt.Fprintf(stderr, "graphmix: unknown command %q\n", cmd)
		fs.Usage()
		return exitUsage
	}
	if opts.metrics {
		writeMetrics(stderr, e.expvar)
	}
	if runErr != nil {
		fmt.Fprintf(stderr, "graphmix: %s: %v\n", cmd, runErr)
		return exitError
	}
	return exitOK
}

func config(opts options) (app.Config, error) {
	cfg, err := app.FromEnv(getenv)
	if err != nil {
		return cfg, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.LogFormat = opts.logFormat
	}
	if opts.format != "" {
		cfg.Output = protocol.Format(opts.format)
	}
	return cfg, cfg.Validate()
}

// env holds the collaborators a command needs.
type env struct {
	cfg      app.Config
	opts     options
	registry *registry.Registry
	closers  []io.Closer
	expvar   *core.ExpvarMetricsRecorder
	metrics  core.MetricsRecorder
}

func newEnv(ctx context.Context, cfg app.Config, opts options) (*env, error) {
	e := &env{cfg: cfg, opts: opts, expvar: core.NewExpvarMetricsRecorder("")}
	prom, err := core.NewPrometheusMetricsRecorder(prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}
	e.metrics = core.MultiRecorder{e.expvar, prom}

	repo, err := core.OpenChemicalStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open chemical store: %w", err)
	}
	if c, ok := repo.(io.Closer); ok {
		e.closers = append(e.closers, c)
	}
	var remote registry.Lookup
	if !opts.offline {
		remote = pubchem.New(
			pubchem.WithBaseURL(cfg.PubChemURL),
			pubchem.WithRate(cfg.PubChemRPS),
			pubchem.WithTimeout(cfg.PubChemTimeout),
		)
	}
	e.registry = registry.New(repo, remote, registry.WithMetrics(e.metrics))
	return e, nil
}

func (e *env) close(ctx context.Context) {
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			ctxlog.FromContext(ctx).Warn("close failed", "err", err)
		}
	}
}

func (e *env) openArchive(ctx context.Context) (*archive.Archive, error) {
	store, err := blob.Open(ctx, e.cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return archive.New(store), nil
}

// load reads a protocol file and solves it.
func (e *env) load(ctx context.Context, path string) (*protocol.Protocol, error) {
	p, err := hclproto.LoadFile(ctx, path, e.registry, e.opts.vars)
	if err != nil {
		return nil, err
	}
	err = core.Measure(ctx, e.metrics, core.OpProtocolSolve, func() error {
		_, err := p.Solve()
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := p.CheckVolumes(); err != nil {
		if !e.opts.skipCheck {
			return nil, err
		}
		ctxlog.FromContext(ctx).Warn("volume check failed", "err", err)
	}
	return p, nil
}

func writeMetrics(w io.Writer, rec *core.ExpvarMetricsRecorder) {
	b, err := json.MarshalIndent(rec.Snapshot(), "", "  ")
	if err != nil {
		fmt.Fprintf(w, "graphmix: encode metrics: %v\n", err)
		return
	}
	fmt.Fprintln(w, string(b))
}
