package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	httpAdapter "github.com/vgrab/vgrab/internal/adapter/http"
	"github.com/vgrab/vgrab/internal/adapter/sqlite"
	"github.com/vgrab/vgrab/internal/adapter/ytdlp"
	"github.com/vgrab/vgrab/internal/batch"
	"github.com/vgrab/vgrab/internal/config"
	"github.com/vgrab/vgrab/internal/domain"
	"github.com/vgrab/vgrab/internal/retry"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("config: %v", err)
		return 1
	}

	var (
		concurrency = flag.Int("concurrency", cfg.Concurrency, "number of simultaneous downloads")
		outputDir   = flag.String("output-dir", cfg.OutputDir, "directory downloads are written to")
		archiveDB   = flag.String("archive-db", cfg.ArchiveDB, "path of the completed-download archive")
		downloader  = flag.String("downloader", cfg.Downloader, "downloader binary")
		port        = flag.Int("port", cfg.Port, "HTTP port for remote submission (0 disables)")
		listFile    = flag.String("batch-file", "", "file with one URL per line, # comments allowed")
		check       = flag.Bool("check", false, "verify external tools and exit")
		audioOnly   = flag.Bool("audio-only", cfg.Defaults.AudioOnly, "extract audio instead of video")
		proxy       = flag.String("proxy", cfg.Defaults.Proxy, "SOCKS5 proxy host:port")
		cookies     = flag.String("cookies", cfg.Defaults.CookiesFile, "cookies file passed to the downloader")
		rateLimit   = flag.String("rate-limit", cfg.Defaults.RateLimit, "per-download rate limit, e.g. 4M")
	)
	flag.Parse()

	cfg.Concurrency = *concurrency
	cfg.OutputDir = *outputDir
	cfg.ArchiveDB = *archiveDB
	cfg.Downloader = *downloader
	cfg.Port = *port
	cfg.Defaults.AudioOnly = *audioOnly
	cfg.Defaults.Proxy = *proxy
	cfg.Defaults.CookiesFile = *cookies
	cfg.Defaults.RateLimit = *rateLimit

	classifier, err := retry.NewClassifier(cfg.Classifier.TransientPatterns, cfg.Classifier.PermanentPatterns)
	if err != nil {
		log.Printf("classifier patterns: %v", err)
		return 1
	}

	runner := ytdlp.New(cfg.Downloader, classifier)
	runner.SetStallWindow(cfg.StallWindow.Duration)
	runner.SetGraceWindow(cfg.GraceWindow.Duration)

	if *check {
		if err := runner.CheckTools(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("%s and ffmpeg found\n", cfg.Downloader)
		return 0
	}

	urls := flag.Args()
	if *listFile != "" {
		fromFile, err := batch.ReadListFile(*listFile)
		if err != nil {
			log.Printf("batch file: %v", err)
			return 1
		}
		urls = append(urls, fromFile...)
	}

	if len(urls) == 0 && cfg.Port == 0 {
		fmt.Fprintln(os.Stderr, "usage: vgrab [flags] URL...")
		flag.PrintDefaults()
		return 2
	}

	archive, err := sqlite.New(cfg.ArchiveDB)
	if err != nil {
		log.Printf("archive: %v", err)
		return 1
	}
	defer archive.Close()

	policy := retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BackoffBase.Duration,
		MaxDelay:    cfg.BackoffMax.Duration,
	}
	ctrl := batch.New(runner, archive, policy, cfg.Concurrency, cfg.PublishInterval.Duration)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if len(urls) == 0 {
		return serve(ctrl, cfg, runner, sigCh)
	}

	var srv *httpAdapter.Server
	if cfg.Port > 0 {
		srv = httpAdapter.NewServer(ctrl, cfg.Options(), runner.CheckTools, fmt.Sprintf(":%d", cfg.Port))
		go func() {
			log.Printf("HTTP server listening on :%d", cfg.Port)
			if err := srv.ListenAndServe(); err != nil && err.Error() != "http: Server closed" {
				log.Printf("HTTP server error: %v", err)
			}
		}()
	}

	handle, err := ctrl.Submit(urls, cfg.Options())
	if err != nil {
		log.Printf("submit: %v", err)
		return 1
	}

	updates, err := ctrl.Subscribe(handle)
	if err != nil {
		log.Printf("subscribe: %v", err)
		return 1
	}

	go func() {
		<-sigCh
		log.Print("interrupt received, cancelling batch")
		ctrl.Cancel(handle)
		// Second interrupt exits without waiting for processes to die.
		<-sigCh
		log.Print("second interrupt, exiting")
		os.Exit(130)
	}()

	final := report(updates)

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}

	printSummary(final)
	if final.State == domain.BatchSucceeded {
		return 0
	}
	return 1
}

// serve runs without a local batch, accepting submissions over HTTP until
// interrupted.
func serve(ctrl *batch.Controller, cfg *config.Config, runner *ytdlp.Runner, sigCh chan os.Signal) int {
	srv := httpAdapter.NewServer(ctrl, cfg.Options(), runner.CheckTools, fmt.Sprintf(":%d", cfg.Port))
	go func() {
		log.Printf("HTTP server listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err.Error() != "http: Server closed" {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	sig := <-sigCh
	log.Printf("received signal %v, shutting down", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	return 0
}

// report consumes coalesced snapshots until the batch finishes, logging job
// transitions and periodic overall progress. It returns the final snapshot.
func report(updates <-chan domain.BatchSnapshot) domain.BatchSnapshot {
	var final domain.BatchSnapshot
	lastState := make(map[string]domain.JobState)

	for snap := range updates {
		for _, j := range snap.Jobs {
			if j.State == lastState[j.ID] {
				continue
			}
			lastState[j.ID] = j.State
			switch j.State {
			case domain.StateRunning:
				log.Printf("job %s: attempt %d started (%s)", j.ID, j.Attempts, j.SourceURL)
			case domain.StateSucceeded:
				size := ""
				if j.TotalBytes > 0 {
					size = " " + humanize.Bytes(j.TotalBytes)
				}
				log.Printf("job %s: done%s", j.ID, size)
			case domain.StateFailed:
				log.Printf("job %s: failed (%s): %s", j.ID, j.LastError, j.ErrorText)
			case domain.StateCancelled:
				log.Printf("job %s: cancelled", j.ID)
			}
		}
		if snap.State == domain.BatchRunning {
			log.Printf("batch %s: %.1f%% (%d/%d done)", snap.Handle,
				snap.Progress*100, terminalCount(snap), len(snap.Jobs))
		}
		final = snap
	}
	return final
}

func terminalCount(snap domain.BatchSnapshot) int {
	n := 0
	for state, count := range snap.Counts {
		if state.Terminal() {
			n += count
		}
	}
	return n
}

func printSummary(snap domain.BatchSnapshot) {
	log.Printf("batch %s: %s (%d succeeded, %d failed, %d cancelled)",
		snap.Handle, snap.State,
		snap.Counts[domain.StateSucceeded],
		snap.Counts[domain.StateFailed],
		snap.Counts[domain.StateCancelled])
}
