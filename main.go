package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"pisowatch/config"
	"pisowatch/internal/fetch"
	"pisowatch/internal/scraper"
	"pisowatch/logger"
	"pisowatch/services/notifier"
	"pisowatch/services/publisher"
	"pisowatch/services/store"
	"pisowatch/services/worker"
)

func main() {
	// Load environment variables
	godotenv.Load()

	once := flag.Bool("once", false, "run a single crawl and exit, ignoring the schedule")
	testMode := flag.Bool("test", false, "log notifications instead of sending them")
	portalFlag := flag.String("portal", "", "crawl only this portal")
	profileFlag := flag.String("profile", "", "crawl only this search profile")
	maxPages := flag.Int("max-pages", 0, "override MAX_PAGES for this run")
	listPortals := flag.Bool("list-portals", false, "print supported portals and exit")
	showStats := flag.Bool("stats", false, "print listing counts and exit")
	excludeID := flag.String("exclude", "", "mark a listing id as excluded and exit")
	excludeReason := flag.String("reason", "", "reason recorded with -exclude")
	flag.Parse()

	if *listPortals {
		fmt.Println(strings.Join(scraper.AvailablePortals(), "\n"))
		return
	}

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if *maxPages > 0 {
		cfg.MaxPages = *maxPages
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	if *portalFlag != "" {
		if _, err := scraper.NewAdapter(*portalFlag); err != nil {
			log.Fatal().Err(err).Msg("Invalid portal")
		}
	}

	log.Info().
		Str("environment", cfg.Environment).
		Strs("portals", cfg.Portals).
		Msg("Starting pisowatch")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, cfg.DatabaseURL, cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open listing store")
	}
	defer st.Close()

	switch {
	case *showStats:
		total, active, isNew, err := st.CountListings(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to count listings")
		}
		fmt.Printf("listings: %d total, %d active, %d new\n", total, active, isNew)
		return

	case *excludeID != "":
		if err := st.AddExclusion(ctx, *excludeID, "", *excludeReason); err != nil {
			log.Fatal().Err(err).Msg("Failed to add exclusion")
		}
		log.Info().Str("id", *excludeID).Msg("Listing excluded")
		return
	}

	profiles, err := config.LoadProfiles(cfg.ProfilesPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load search profiles")
	}

	pub := publisher.NewRedisPublisher(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream, cfg.RedisStreamMaxLength)
	defer pub.Close()
	log.Info().Str("addr", cfg.RedisAddr).Str("stream", cfg.RedisStream).Msg("Connected to Redis")

	notifiers := []notifier.Notifier{
		notifier.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID),
		notifier.NewEmailNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.EmailFrom, cfg.EmailTo),
	}

	w := worker.New(cfg, profiles, st, pub, notifiers, nil)
	defer fetch.CloseSharedBrowser()

	opts := worker.RunOptions{
		TestMode: *testMode,
		Profile:  *profileFlag,
	}
	if *portalFlag != "" {
		opts.Portals = []string{*portalFlag}
	}

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	workerDone := make(chan error, 1)
	go func() {
		if *once {
			_, err := w.Run(ctx, opts)
			workerDone <- err
			return
		}
		workerDone <- w.Start(ctx, opts)
	}()

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
		<-workerDone
	case err := <-workerDone:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("Worker exited with error")
		} else {
			log.Info().Msg("Worker exited normally")
		}
	}

	log.Info().Msg("Shutting down gracefully...")
}
