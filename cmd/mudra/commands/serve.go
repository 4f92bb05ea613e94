package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/metrics"
	"github.com/ayusman/mudra/internal/protocol"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/transport"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gesture server",
	Long: `Serve landmark sessions over WebSocket (/ws) and, when server.framed_addr
is set, over length-framed TCP. The HTTP API manages templates and exposes the
session journal and Prometheus metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	m := metrics.New()

	var st *store.Store
	var journal *store.Journal
	if cfg.Store.Path != "" {
		st, err = store.New(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
		journal = store.NewJournal(st, cfg.Store.JournalQueue, logger, m)
		defer journal.Close()
		logger.Info("store opened", "path", st.Path())
	} else {
		logger.Warn("store disabled; sessions and templates are not persisted")
	}

	classifier, templates, err := buildClassifier(cfg, st, logger)
	if err != nil {
		return err
	}

	var validator gesture.Validator = gesture.AllowAll{}
	if cfg.Classifier.FaceFilter {
		validator = gesture.NewFaceProximity(cfg.Classifier.FaceRadius)
	}

	srv := server.New(server.Config{
		StaticDir:       cfg.Server.StaticDir,
		Store:           st,
		Journal:         journal,
		Registry:        session.NewRegistry(),
		Metrics:         m,
		Classifier:      classifier,
		Templates:       templates,
		Validator:       validator,
		Debouncer:       gesture.NewDebouncer(cfg.Debounce),
		SmoothingWindow: cfg.Pipeline.SmoothingWindow,
		Logger:          logger,
	})

	framedErr := make(chan error, 1)
	if cfg.Server.FramedAddr != "" {
		enc, err := protocol.ParseEncoding(cfg.Server.FramedEncoding)
		if err != nil {
			return err
		}
		l, err := transport.ListenFramed(cfg.Server.FramedAddr)
		if err != nil {
			return fmt.Errorf("listen framed: %w", err)
		}
		go func() {
			framedErr <- srv.ServeFramed(ctx, l, enc)
		}()
	} else {
		framedErr <- nil
	}

	httpErr := srv.ListenAndServe(ctx, cfg.Server.Addr)
	stop()
	return errors.Join(httpErr, <-framedErr)
}

// buildClassifier returns the configured classifier and the template set
// the API edits. With the template classifier they are the same value.
func buildClassifier(cfg config.Config, st *store.Store, logger *slog.Logger) (gesture.Classifier, *gesture.TemplateClassifier, error) {
	templates := gesture.NewTemplateClassifier()
	if st != nil {
		n, err := api.LoadTemplates(st, templates, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("load templates: %w", err)
		}
		logger.Info("templates loaded", "count", n)
	}

	switch cfg.Classifier.Kind {
	case config.ClassifierHeuristic:
		return gesture.NewHeuristic(cfg.Classifier.Thresholds), templates, nil
	case config.ClassifierTemplate:
		if templates.Len() == 0 {
			logger.Warn("template classifier has no trained templates; every frame classifies as none")
		}
		return templates, templates, nil
	case config.ClassifierNoop:
		return gesture.Noop{}, templates, nil
	}
	return nil, nil, fmt.Errorf("unknown classifier %q", cfg.Classifier.Kind)
}
