// Command scrap runs a YAML block project. Interrupting the process stops the
// program the same way the stop button would.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/blackboard"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/eventbus"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/host"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/program"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/project"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	path     string
	pace     time.Duration
	turbo    bool
	duration time.Duration
	redis    string
	prefix   string
	verbose  bool
}

var errUsage = errors.New("usage: scrap [options] PROJECT.yaml")

func parse(args []string, out io.Writer) (*options, bool, error) {
	fs := flag.NewFlagSet("scrap", flag.ContinueOnError)
	fs.SetOutput(out)
	opts := &options{}
	fs.DurationVar(&opts.pace, "pace", 0, "Frame delay of paced blocks; 0 uses the project or default pace.")
	fs.BoolVar(&opts.turbo, "turbo", false, "Disable frame pacing.")
	fs.DurationVar(&opts.duration, "duration", 0, "Stop the program after this long; 0 runs until stopped.")
	fs.StringVar(&opts.redis, "redis", "", "Redis address for the message bus and variable monitors.")
	fs.StringVar(&opts.prefix, "prefix", "scrap:", "Key and topic prefix used on Redis.")
	fs.BoolVar(&opts.verbose, "v", false, "Log every rendered frame.")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, false, errUsage
	}
	opts.path = fs.Arg(0)
	return opts, false, nil
}

func run(ctx context.Context, out io.Writer, args []string) (err error) {
	opts, exit, err := parse(args, out)
	if err != nil || exit {
		return err
	}
	logger := log.New(out, "scrap ", log.LstdFlags)

	proj, err := project.LoadFile(opts.path)
	if err != nil {
		return err
	}

	var rendererLog *log.Logger
	if opts.verbose {
		rendererLog = logger
	}
	renderer := host.NewRecordingRenderer(rendererLog)
	catalog := proj.Catalog(nil)
	cfg := program.Config{
		Pace:     opts.pace,
		Turbo:    opts.turbo,
		Renderer: renderer,
		Assets:   catalog,
		Audio:    catalog,
		Logger:   logger,
	}
	if opts.redis != "" {
		ropts := &redis.Options{Addr: opts.redis}
		bus := eventbus.NewRedisBus(ropts, opts.prefix, logger)
		store := blackboard.NewRedisStore(ropts, opts.prefix, logger)
		defer func() {
			err = multierr.Combine(err, bus.Close(), store.Close())
		}()
		cfg.Bus = bus
		cfg.Monitor = store
	}

	prog, err := proj.Build(cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, prog.Close())
	}()

	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}
	logger.Printf("running %q", proj.Name)
	if err := prog.Run(ctx); err != nil {
		return err
	}
	report(out, prog, renderer)
	return nil
}

// report prints the final state of every entity and its variables.
func report(out io.Writer, prog *program.Program, r *host.RecordingRenderer) {
	name, _ := prog.Stage().Backdrop()
	fmt.Fprintf(out, "stage backdrop=%s frames=%d pen-lines=%d\n", name, r.Frames(), len(r.Lines()))
	printVariables(out, "stage", prog.Stage().Variables(), prog.Stage().Variable)
	for _, s := range prog.Sprites() {
		costume, _ := s.Costume()
		fmt.Fprintf(out, "sprite %s x=%.2f y=%.2f direction=%.0f costume=%s\n",
			s.Name(), s.X(), s.Y(), s.Direction(), costume)
		printVariables(out, s.Name(), s.Variables(), s.Variable)
	}
}

func printVariables(out io.Writer, owner string, names []string, get func(string) (interface{}, error)) {
	for _, n := range names {
		v, err := get(n)
		if err != nil {
			continue
		}
		fmt.Fprintf(out, "  %s.%s = %v\n", owner, n, v)
	}
}
