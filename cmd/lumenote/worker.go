package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/k0luchiy/LumeNote/internal/discover"
	"github.com/k0luchiy/LumeNote/internal/generate"
	"github.com/k0luchiy/LumeNote/internal/notify"
	"github.com/k0luchiy/LumeNote/internal/render"
	"github.com/k0luchiy/LumeNote/internal/speech"
	"github.com/k0luchiy/LumeNote/internal/telegram"
	"github.com/k0luchiy/LumeNote/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the job worker pool",
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	c, err := buildCore(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	client, err := telegram.NewClient(c.cfg.Telegram.Token.Value())
	if err != nil {
		return err
	}

	generator, err := generate.NewGemini(ctx, generate.GeminiConfig{
		APIKey: c.cfg.Gemini.APIKey.Value(),
		Model:  c.cfg.Gemini.Model,
	})
	if err != nil {
		return err
	}
	defer generator.Close()

	wcfg := worker.Config{
		Queue:      c.queue,
		Partitions: c.partitions,
		Generator:  generator,
		Renderer:   render.NewGraphviz(),
		Fetcher:    discover.NewFetcher(),
		Notifier:   notify.New(client, c.logger),
		Logger:     c.logger,
		Policies:   policies(c.cfg.Worker),
		TempDir:    c.cfg.Worker.TempDir,
	}

	// Optional collaborators: jobs needing them fail cleanly when unset.
	if c.cfg.Speech.PiperURL != "" {
		wcfg.Synthesizer, err = speech.NewPiper(c.cfg.Speech.PiperURL)
		if err != nil {
			return err
		}
	}
	if c.cfg.Tavily.APIKey.IsSet() {
		wcfg.Searcher, err = discover.NewTavily(c.cfg.Tavily.APIKey.Value(),
			discover.WithMaxResults(c.cfg.Tavily.MaxResults))
		if err != nil {
			return err
		}
	}

	w, err := worker.New(wcfg)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/healthz", func(ec echo.Context) error {
		return ec.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		c.logger.Info("worker pool started")
		return w.Run(ctx)
	})
	g.Go(func() error {
		c.logger.Info("metrics server started", zap.String("addr", c.cfg.Server.MetricsAddr))
		if err := e.Start(c.cfg.Server.MetricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
