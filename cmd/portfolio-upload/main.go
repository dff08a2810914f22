// portfolio-upload — CLI загрузки файлов в portfolio-server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bigkaa/portfolio/internal/config"
	"github.com/bigkaa/portfolio/internal/uploadclient"
)

// uploadOptions — флаги команды.
type uploadOptions struct {
	server    string
	user      string
	password  string
	chunked   bool
	chunkSize string
	attempts  int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &uploadOptions{}

	cmd := &cobra.Command{
		Use:   "portfolio-upload [file...]",
		Short: "Загрузка медиафайлов в portfolio-server",
		Long: `Загружает изображения и видео в portfolio-server.

Файлы отправляются одним запросом в /api/upload или, с флагом --chunked,
чанками в /api/upload/streaming с повтором каждого чанка.

Примеры:
  portfolio-upload photo.jpg
  portfolio-upload --chunked --chunk-size 8MiB reel.mp4
  PF_ADMIN_PASSWORD=secret portfolio-upload --server https://example.com a.png b.webm`,
		Args:          cobra.MinimumNArgs(1),
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd.Context(), opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.server, "server", envOr("PF_SERVER_URL", "http://localhost:3000"), "Адрес portfolio-server")
	cmd.Flags().StringVar(&opts.user, "user", envOr("PF_ADMIN_USER", "admin"), "Имя администратора")
	cmd.Flags().StringVar(&opts.password, "password", os.Getenv("PF_ADMIN_PASSWORD"), "Пароль администратора (по умолчанию PF_ADMIN_PASSWORD)")
	cmd.Flags().BoolVar(&opts.chunked, "chunked", false, "Загружать чанками")
	cmd.Flags().StringVar(&opts.chunkSize, "chunk-size", "5MiB", "Размер чанка")
	cmd.Flags().IntVar(&opts.attempts, "attempts", uploadclient.DefaultMaxAttempts, "Попыток на чанк")

	return cmd
}

func runUpload(ctx context.Context, opts *uploadOptions, files []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	chunkSize, err := humanize.ParseBytes(opts.chunkSize)
	if err != nil || chunkSize == 0 {
		return fmt.Errorf("некорректный --chunk-size %q", opts.chunkSize)
	}

	client, err := uploadclient.New(opts.server)
	if err != nil {
		return err
	}
	if err := client.Login(ctx, opts.user, opts.password); err != nil {
		return fmt.Errorf("вход не выполнен: %w", err)
	}

	for _, path := range files {
		start := time.Now()
		var res *uploadclient.Result
		if opts.chunked {
			res, err = client.UploadChunked(ctx, path, uploadclient.ChunkedOptions{
				ChunkSize:   int64(chunkSize),
				MaxAttempts: opts.attempts,
				OnProgress:  printProgress(path),
			})
			fmt.Println()
		} else {
			res, err = client.Upload(ctx, path)
		}
		if errors.Is(err, uploadclient.ErrOutcomeUnknown) {
			return fmt.Errorf("%s: файл мог быть загружен, проверьте его на сервере: %w", path, err)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Printf("%s → %s (%s за %s)\n", path, res.URL,
			humanize.IBytes(uint64(res.Size)), time.Since(start).Round(time.Millisecond))
	}
	return nil
}

// printProgress возвращает callback, перерисовывающий строку прогресса.
func printProgress(path string) func(uploadclient.Progress) {
	return func(p uploadclient.Progress) {
		fmt.Printf("\r%s: чанк %d/%d, %.1f%%, %s/s, осталось %s   ",
			path, p.Chunk, p.TotalChunks, p.Percent,
			humanize.IBytes(uint64(p.Speed)), p.ETA.Round(time.Second))
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
