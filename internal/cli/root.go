// Package cli is the coverletter command.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/muhammadolammi/coverletter/internal/config"
	"github.com/muhammadolammi/coverletter/internal/document"
	"github.com/muhammadolammi/coverletter/internal/domain"
	"github.com/muhammadolammi/coverletter/internal/generation"
	"github.com/muhammadolammi/coverletter/internal/llm"
	"github.com/muhammadolammi/coverletter/internal/logger"
	"github.com/muhammadolammi/coverletter/internal/notify"
	"github.com/muhammadolammi/coverletter/internal/runstore"
	"github.com/muhammadolammi/coverletter/internal/session"
	"github.com/muhammadolammi/coverletter/internal/tokens"
	"github.com/muhammadolammi/coverletter/internal/tui"
)

const version = "0.1.0"

type options struct {
	configPath string
	in         inputs
	plain      bool
	outDir     string
}

// NewRootCmd builds the coverletter command.
func NewRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:     "coverletter",
		Short:   "Write a cover letter from your CV and a job offer",
		Version: version,
		Long: `Streams two generations side by side from one CV and one job offer:
the key points linking the offer's requirements to your experience, and a
cover letter tailored to the offer.`,
		Example: `  # Interactive: prompts for the token, the CV and the offer
  $ coverletter

  # From files, without the terminal UI
  $ coverletter --cv cv.pdf --offer-file offer.txt --plain --out-dir out/

  # Try the flow offline
  $ coverletter --backend mock --cv cv.txt --offer-file offer.txt`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "config file (yaml, json or toml)")
	f.StringVar(&opts.in.cv, "cv", "", "CV file (.pdf, .docx, .txt) or r2://key")
	f.StringVar(&opts.in.offer, "offer", "", "job offer text")
	f.StringVar(&opts.in.offerFile, "offer-file", "", "file containing the job offer")
	f.String("backend", config.BackendReplicate, "inference backend: replicate, gemini or mock")
	f.String("model", "", "Replicate model (owner/name or version id)")
	f.String("log-level", "", "log level: debug, info, warn, error")
	f.BoolVar(&opts.plain, "plain", false, "print results instead of starting the terminal UI")
	f.StringVar(&opts.outDir, "out-dir", "", "with --plain, stream each result into a file in this directory")

	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.AddCommand(newStatusCmd())
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func run(cmd *cobra.Command, opts options) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := printer{w: cmd.ErrOrStderr()}

	cfg, err := config.Load(opts.configPath, cmd.Flags())
	if err != nil {
		out.Error("failed to load config: %v", err)
		return err
	}

	closer, err := logger.Setup(cfg.Log)
	if err != nil {
		out.Error("failed to set up logging: %v", err)
		return err
	}
	defer closer.Close()

	// the gate cannot run without the vocabulary
	if err := tokens.Load(); err != nil {
		out.Error("%s", domain.UserMessage(err))
		return err
	}

	token := cfg.ReplicateAPIToken
	if cfg.Backend == config.BackendReplicate && !opts.plain {
		token, err = resolveToken(cfg, surveyAsker{}, out)
		if err != nil {
			return err
		}
	}

	loader, err := newLoader(ctx, cfg)
	if err != nil {
		out.Warning("R2 storage unavailable: %v", err)
		loader = document.NewLoader()
	}

	st := session.New(token)
	if err := fillSession(ctx, st, opts.in, loader, surveyAsker{}, !opts.plain); err != nil {
		out.Error("%v", err)
		return err
	}

	client, model, err := newStreamClient(ctx, cfg, token)
	if err != nil {
		out.Error("failed to create %s client: %v", cfg.Backend, err)
		return err
	}

	svc, cleanup := newService(ctx, cfg, client, model, out)
	defer cleanup()

	if !opts.plain {
		return tui.Run(ctx, svc, st)
	}

	if err := st.Validate(); err != nil {
		out.Info("%s", domain.UserMessage(err))
		return err
	}
	report, err := runPlain(ctx, svc, st, opts.outDir, cmd.OutOrStdout(), out)
	if err != nil {
		return err
	}
	if cfg.DBURL != "" {
		out.Info("run %s recorded, see: coverletter status %s", report.RunID, report.RunID)
	}
	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d tasks failed", len(failed), len(report.Results))
	}
	return nil
}

func newLoader(ctx context.Context, cfg *config.Config) (*document.Loader, error) {
	if !cfg.R2.Enabled() {
		return document.NewLoader(), nil
	}
	return document.NewR2Loader(ctx, cfg.R2)
}

// newService wires the orchestrator with its observers. Status stores are
// optional; one that cannot be reached is skipped with a warning.
func newService(ctx context.Context, cfg *config.Config, client llm.StreamClient, model string, out printer) (*generation.Service, func()) {
	observers := generation.Observers{generation.LogObserver{}}
	var starters []generation.ServiceOption
	var closers []io.Closer

	if cfg.DBURL != "" {
		store, err := runstore.Open(ctx, cfg.DBURL, cfg.Backend)
		if err != nil {
			out.Warning("run status will not be recorded: %v", err)
		} else {
			observers = append(observers, store)
			starters = append(starters, generation.WithRunStarter(store))
			closers = append(closers, store)
		}
	}
	if cfg.RabbitMQURL != "" {
		pub, err := notify.Dial(cfg.RabbitMQURL)
		if err != nil {
			out.Warning("status updates will not be published: %v", err)
		} else {
			observers = append(observers, pub)
			closers = append(closers, pub)
		}
	}

	orch := generation.NewOrchestrator(client, tokens.NewGate(cfg.MaxPromptTokens),
		generation.WithObserver(observers),
		generation.WithTimeout(cfg.GenerationTimeout),
	)
	svc := generation.NewService(orch, model, llm.DefaultParams(), starters...)

	return svc, func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				slog.Warn("failed to close", "error", err)
			}
		}
	}
}
