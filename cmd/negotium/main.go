// Command negotium runs the multi-agent negotiation engine from a config
// file and a requester demand, printing the resulting plan, trace, and
// event stream. Grounded on cmd/hector/main.go's kong CLI/*Cmd.Run shape,
// scaled to this module's single domain operation rather than ported
// wholesale.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/negotium-ai/negotium/pkg/channel"
	"github.com/negotium-ai/negotium/pkg/config"
	"github.com/negotium-ai/negotium/pkg/encoder"
	"github.com/negotium-ai/negotium/pkg/engine"
	"github.com/negotium-ai/negotium/pkg/eventbus"
	"github.com/negotium-ai/negotium/pkg/llms"
	"github.com/negotium-ai/negotium/pkg/logger"
	"github.com/negotium-ai/negotium/pkg/observability"
	"github.com/negotium-ai/negotium/pkg/ratelimit"
	"github.com/negotium-ai/negotium/pkg/registry"
	"github.com/negotium-ai/negotium/pkg/resonance"
	"github.com/negotium-ai/negotium/pkg/session"
	"github.com/negotium-ai/negotium/pkg/trace"
)

// CLI defines the command-line interface.
type CLI struct {
	Negotiate NegotiateCmd `cmd:"" help:"Run one negotiation end to end and print the resulting plan."`
	Version   VersionCmd   `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to config file." type:"path" default:"configs/negotium.example.yaml"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd prints the module's build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("negotium version %s\n", version)
	return nil
}

// NegotiateCmd wires every collaborator the engine needs and runs exactly
// one negotiation.
type NegotiateCmd struct {
	Requester string `help:"Requester id for the negotiation." default:"cli-requester"`
	Demand    string `arg:"" help:"Raw natural-language demand text."`
	TimeoutS  int    `name:"timeout" help:"Override session wall-clock timeout, in seconds (0 = use config)."`
}

func (c *NegotiateCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("negotium: load config: %w", err)
	}
	if cli.LogLevel != "" {
		cfg.Logger.Level = cli.LogLevel
	}
	if cli.LogFile != "" {
		cfg.Logger.File = cli.LogFile
	}
	if cli.LogFormat != "" {
		cfg.Logger.Format = cli.LogFormat
	}
	if c.TimeoutS > 0 {
		cfg.Engine.SessionWallClockMS = c.TimeoutS * 1000
	}

	level, err := logger.ParseLevel(cfg.Logger.Level)
	if err != nil {
		return fmt.Errorf("negotium: %w", err)
	}
	output := os.Stderr
	var cleanup func()
	if cfg.Logger.File != "" {
		f, closeFn, ferr := logger.OpenLogFile(cfg.Logger.File)
		if ferr != nil {
			return fmt.Errorf("negotium: open log file: %w", ferr)
		}
		output = f
		cleanup = closeFn
	}
	logger.Init(level, output, cfg.Logger.Format)
	if cleanup != nil {
		defer cleanup()
	}
	log := logger.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitGlobalTracer(ctx, cfg.Observability)
	if err != nil {
		return fmt.Errorf("negotium: init tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	central, err := llms.NewRegistry().CreateFromConfig("central", &cfg.CentralLLM)
	if err != nil {
		return fmt.Errorf("negotium: build central provider: %w", err)
	}
	defer central.Close()

	enc, err := encoder.New(&cfg.Encoder)
	if err != nil {
		return fmt.Errorf("negotium: build encoder: %w", err)
	}
	defer enc.Close()

	profiles := registry.NewProfileRegistry()
	if cfg.ProfileRegistry.Path != "" {
		if err := profiles.LoadFile(cfg.ProfileRegistry.Path); err != nil {
			return fmt.Errorf("negotium: load profiles: %w", err)
		}
		if cfg.ProfileRegistry.WatchFile {
			stopWatch, werr := profiles.Watch()
			if werr != nil {
				return fmt.Errorf("negotium: watch profiles: %w", werr)
			}
			defer stopWatch()
		}
	}
	log.Info("profiles loaded", slog.Int("count", profiles.Count()))

	limiter := ratelimit.New(0)
	defChannel := channel.NewDefaultChannel(central, profiles, limiter)
	var extChannel channel.Agent
	if cfg.ExternalChannel != nil {
		extChannel = channel.NewExternalChannel(*cfg.ExternalChannel, profiles, limiter)
	}
	ch := channel.NewCompositeChannel(profiles, defChannel, extChannel)

	var idx *resonance.ProfileIndex
	if cfg.ProfileIndex.PersistDir != "" {
		idx, err = resonance.NewProfileIndex(resonance.IndexConfig{
			PersistDir: cfg.ProfileIndex.PersistDir,
			Compress:   cfg.ProfileIndex.Compress,
		})
		if err != nil {
			return fmt.Errorf("negotium: build profile index: %w", err)
		}
	}

	chains := engine.NewChainRegistry()
	bus := eventbus.New(256, chains.DropHandler())

	eng, err := engine.New(central, enc, profiles, ch, bus, idx, chains, cfg.Engine)
	if err != nil {
		return fmt.Errorf("negotium: build engine: %w", err)
	}

	sess, tr, runErr := eng.Negotiate(ctx, c.Requester, c.Demand)
	if sess == nil {
		return fmt.Errorf("negotium: negotiation did not produce a session: %w", runErr)
	}

	printResult(sess, tr, bus.Replay(sess.ID()))
	if runErr != nil {
		return fmt.Errorf("negotium: negotiation ended in error: %w", runErr)
	}
	return nil
}

// printResult renders the session's final state, event stream, and plan
// (when one was produced) as indented JSON, matching a human operator's
// expectation of a CLI that ran one negotiation to completion.
func printResult(sess *session.NegotiationSession, tr *trace.Chain, events []eventbus.Event) {
	fmt.Printf("negotiation %s finished in state %s\n", sess.ID(), sess.State())

	fmt.Println("--- events ---")
	for _, ev := range events {
		fmt.Printf("%s %s\n", ev.Timestamp.Format(time.RFC3339), ev.EventType)
	}

	fmt.Println("--- trace ---")
	for _, entry := range tr.Entries() {
		fmt.Printf("#%d %s %s\n", entry.Sequence, entry.Timestamp.Format(time.RFC3339), entry.Kind)
	}

	if plan := sess.Plan(); plan != nil {
		fmt.Println("--- plan ---")
		out, err := json.MarshalIndent(plan, "", "  ")
		if err == nil {
			fmt.Println(string(out))
		}
	}
	if sessErr := sess.Err(); sessErr != nil {
		fmt.Printf("--- error ---\n%s\n", sessErr)
	}
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("negotium"),
		kong.Description("negotium - multi-agent negotiation engine"),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
