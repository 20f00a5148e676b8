package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lapboard/pkg/ingest"
	"lapboard/pkg/laptime"
	"lapboard/pkg/ocr"
	"lapboard/pkg/storage"
	"lapboard/process/inbox"
	"lapboard/process/report"
)

func (a *app) ordering() laptime.Ordering {
	if a.cfg.NumericRanking {
		return laptime.Numeric
	}
	return laptime.Lexical
}

// buildPipeline wires the collaborators once per process.
func (a *app) buildPipeline(s ingest.Store) (*ingest.Pipeline, *storage.Disk, error) {
	disk, err := storage.NewDisk(a.cfg.UploadBase, a.cfg.PublicURL)
	if err != nil {
		return nil, nil, err
	}
	p := ingest.New(
		ocr.NewTesseract(a.log.Named("ocr"), a.cfg.OCRLanguages...),
		disk,
		s,
		ingest.WithOrdering(a.ordering()),
		ingest.WithMaxPixels(a.cfg.MaxImagePixels),
		ingest.WithLogger(a.log.Named("ingest")),
	)
	return p, disk, nil
}

// newRouter returns the CORS-wrapped gin engine.
func newRouter(h *handlers, uploadBase string) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), zapLogger(h.log))
	r.MaxMultipartMemory = h.maxUpload + 1<<20
	setupRoutes(r, h, uploadBase)
	return cors.AllowAll().Handler(r)
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(a.cfg, a.log, false)
			if err != nil {
				return err
			}
			defer s.Close()
			p, disk, err := a.buildPipeline(s)
			if err != nil {
				return err
			}
			gin.SetMode(gin.ReleaseMode)
			h := &handlers{svc: p, log: a.log.Named("http"), maxUpload: a.cfg.MaxUploadBytes}
			srv := &http.Server{
				Addr:              a.cfg.Listen,
				Handler:           newRouter(h, disk.Base()),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			errCh := make(chan error, 1)
			go func() {
				a.log.Info("listening", zap.String("addr", a.cfg.Listen))
				errCh <- srv.ListenAndServe()
			}()
			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}
			a.log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(a.cfg, a.log, true)
			if err != nil {
				return err
			}
			defer s.Close()
			a.log.Info("migration completed")
			return nil
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "ingest screenshots dropped into the inbox directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(a.cfg, a.log, false)
			if err != nil {
				return err
			}
			defer s.Close()
			p, _, err := a.buildPipeline(s)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			w := inbox.New(a.cfg.InboxDir, p, inbox.WithWorkers(a.cfg.Workers), inbox.WithLogger(a.log.Named("inbox")))
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newReportCmd(a *app) *cobra.Command {
	var (
		mapFilter string
		list      bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "print a per-map summary of stored lap times",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(a.cfg, a.log, false)
			if err != nil {
				return err
			}
			defer s.Close()
			recs, err := s.Find(cmd.Context(), mapFilter)
			if err != nil {
				return err
			}
			ord := a.ordering()
			return report.Write(cmd.OutOrStdout(), report.Summarize(recs, ord), recs, ord, list)
		},
	}
	cmd.Flags().StringVar(&mapFilter, "map", laptime.AllMaps, "restrict the report to one map")
	cmd.Flags().BoolVar(&list, "list", false, "list every record under its map")
	return cmd
}

func newExtractCmd(a *app) *cobra.Command {
	var screenshotURL string
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "print the record extracted from an image or a text dump, without saving it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			text := string(data)
			if allowedFile(args[0]) {
				if _, err := ocr.DecodeBounds(data, a.cfg.MaxImagePixels); err != nil {
					return err
				}
				rec := ocr.NewTesseract(a.log.Named("ocr"), a.cfg.OCRLanguages...)
				if text, err = rec.Recognize(cmd.Context(), data); err != nil {
					return err
				}
				if screenshotURL == "" {
					screenshotURL = "file://" + filepath.ToSlash(args[0])
				}
			}
			p := ingest.New(nil, nil, nil, ingest.WithLogger(a.log))
			out := createdResponse(p.Normalize(text, screenshotURL))
			delete(out, "_id")
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&screenshotURL, "screenshot-url", "", "screenshot_url to embed in the output")
	return cmd
}
