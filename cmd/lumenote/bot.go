package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/k0luchiy/LumeNote/internal/bot"
	"github.com/k0luchiy/LumeNote/internal/telegram"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the interactive chat process",
	RunE:  runBot,
}

func runBot(cmd *cobra.Command, _ []string) error {
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

	uploadDir := c.cfg.Worker.TempDir
	if uploadDir == "" {
		uploadDir = filepath.Join(os.TempDir(), "lumenote-uploads")
	}

	b, err := bot.New(bot.Config{
		Transport:   client,
		Queue:       c.queue,
		Prefs:       c.prefs,
		Projects:    c.partitions,
		Logger:      c.logger,
		UploadDir:   uploadDir,
		PollTimeout: c.cfg.Telegram.PollTimeout.Duration(),
	})
	if err != nil {
		return err
	}

	c.logger.Info("bot started", zap.String("upload_dir", uploadDir))
	return b.Run(ctx)
}
