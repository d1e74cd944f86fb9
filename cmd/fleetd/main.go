// Command fleetd is the control plane's HTTP entrypoint: it loads
// config/fleet.yaml, opens every durable store, wires the modular service
// loader, and serves the fleet API until a signal asks it to stop.
//
// Adapted from the teacher's cmd/cliaimonitor/main.go flag-driven startup
// (flag-based paths, os.MkdirAll on the data directory, graceful shutdown on
// SIGINT/SIGTERM) without that tool's single-machine instance locking,
// which has no equivalent in a fleet control plane meant to run as a
// service.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/fleethub/controlplane/internal/apikeys"
	"github.com/fleethub/controlplane/internal/authmw"
	"github.com/fleethub/controlplane/internal/board"
	"github.com/fleethub/controlplane/internal/commits"
	"github.com/fleethub/controlplane/internal/config"
	"github.com/fleethub/controlplane/internal/configstore"
	"github.com/fleethub/controlplane/internal/eventbus"
	"github.com/fleethub/controlplane/internal/feed"
	"github.com/fleethub/controlplane/internal/httpmw"
	"github.com/fleethub/controlplane/internal/journal"
	"github.com/fleethub/controlplane/internal/loader"
	"github.com/fleethub/controlplane/internal/logs"
	"github.com/fleethub/controlplane/internal/natsmirror"
	"github.com/fleethub/controlplane/internal/ratelimit"
	"github.com/fleethub/controlplane/internal/registry"
	"github.com/fleethub/controlplane/internal/reports"
	"github.com/fleethub/controlplane/internal/skills"
	"github.com/fleethub/controlplane/internal/twilio"
	"github.com/fleethub/controlplane/internal/usage"
)

func main() {
	configPath := flag.String("config", "config/fleet.yaml", "Fleet configuration file")
	flag.Parse()

	cfg := config.Load(*configPath)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create data dir %s: %v\n", cfg.DataDir, err)
		os.Exit(1)
	}

	feedBus := eventbus.New("feed", cfg.EventBus.FeedRingCapacity)
	skillsBus := eventbus.New("skills", cfg.EventBus.SkillsRingCapacity)

	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = cfg.NATS.URL
	}
	if natsURL != "" {
		mirror, err := natsmirror.Connect(natsURL)
		if err != nil {
			log.Printf("[MAIN] NATS mirror disabled: %v", err)
		} else {
			defer mirror.Close()
			feedBus.SetMirror(mirror)
			skillsBus.SetMirror(mirror)
			log.Printf("[MAIN] NATS mirror connected to %s", natsURL)
		}
	}

	boardStore, err := board.New(dataPath(cfg, "board.json"), feedBus)
	must(err, "board")

	registryStore, err := registry.New(dataPath(cfg, "registry.json"), feedBus)
	must(err, "registry")
	registryStore.SetStaleThreshold(cfg.StaleThreshold())

	reportsStore, err := reports.Open(dataPath(cfg, "reports.json"), dataPath(cfg, "share.db"))
	must(err, "reports")

	configStore, err := configstore.Open(dataPath(cfg, "config.db"))
	must(err, "configstore")

	commitsStore, err := commits.Open(dataPath(cfg, "commits.jsonl"), feedBus)
	must(err, "commits")

	journalStore, err := journal.Open(dataPath(cfg, "journal.jsonl"), feedBus)
	must(err, "journal")

	logsStore, err := logs.Open(dataPath(cfg, "logs.jsonl"), feedBus)
	must(err, "logs")

	feedStore, err := feed.Open(dataPath(cfg, "feed.jsonl"), feedBus)
	must(err, "feed")

	skillsStore, err := skills.Open(skills.Paths{
		Skills:     dataPath(cfg, "skills.json"),
		Extensions: dataPath(cfg, "extensions.json"),
		Manifests:  dataPath(cfg, "manifests.json"),
	}, skillsBus)
	must(err, "skills")

	usageStore, err := usage.Open(dataPath(cfg, "usage.db"))
	must(err, "usage")
	defer usageStore.Close()

	apikeysStore, err := apikeys.Open(dataPath(cfg, "api-keys.db"))
	must(err, "apikeys")

	sweeper := registry.NewSweeper(registryStore, cfg.StaleThreshold(), cfg.SweepInterval())
	go sweeper.Start()
	defer sweeper.Stop()

	authenticator := authmw.New(os.Getenv("AUTH_TOKEN"), apikeysStore)
	limiter := ratelimit.New(cfg.RateLimitWindow(), cfg.RateLimit.MaxRequests)

	authWrap := func(next http.Handler) http.Handler {
		return authenticator.Middleware(ratelimit.Middleware(limiter)(next))
	}

	l := loader.New(authWrap)

	l.Register(loader.Bundle{
		Name: "board", Description: "Task board with review workflow",
		Routes: func() (string, http.Handler, bool) {
			return "/api/board", board.NewHandler(boardStore).Router(), true
		},
		UI: &loader.UI{Label: "Board", Icon: "clipboard-list", Order: 10},
	})

	l.Register(loader.Bundle{
		Name: "registry", Description: "VM registry and discovery",
		Routes: func() (string, http.Handler, bool) {
			return "/api/registry", registry.NewHandler(registryStore).Router(), true
		},
		UI: &loader.UI{Label: "Registry", Icon: "server", Order: 20},
	})

	l.Register(loader.Bundle{
		Name: "reports", Description: "Agent reports and share links",
		Routes: func() (string, http.Handler, bool) {
			return "/api/reports", reports.NewHandler(reportsStore).Router(), true
		},
	})

	l.Register(loader.Bundle{
		Name: "configstore", Description: "Shared configuration variables",
		Routes: func() (string, http.Handler, bool) {
			return "/api/config", configstore.NewHandler(configStore).Router(), true
		},
	})

	l.Register(loader.Bundle{
		Name: "commits", Description: "Commit ledger", Dependencies: []string{"board"},
		Routes: func() (string, http.Handler, bool) {
			return "/api/commits", commits.NewHandler(commitsStore).Router(), true
		},
	})

	l.Register(loader.Bundle{
		Name: "journal", Description: "Agent journal",
		Routes: func() (string, http.Handler, bool) {
			return "/api/journal", journal.NewHandler(journalStore).Router(), true
		},
	})

	l.Register(loader.Bundle{
		Name: "logs", Description: "Agent log stream",
		Routes: func() (string, http.Handler, bool) {
			return "/api/logs", logs.NewHandler(logsStore).Router(), true
		},
	})

	l.Register(loader.Bundle{
		Name: "feed", Description: "Unified event feed",
		Routes: func() (string, http.Handler, bool) {
			return "/api/feed", feed.NewHandler(feedStore, feedBus).Router(), true
		},
		UI: &loader.UI{Label: "Feed", Icon: "activity", Order: 5},
	})

	l.Register(loader.Bundle{
		Name: "skills", Description: "Skill Hub and agent sync",
		Routes: func() (string, http.Handler, bool) {
			return "/api/skills", skills.NewHandler(skillsStore, skillsBus).Router(), true
		},
		UI: &loader.UI{Label: "Skills", Icon: "puzzle", Order: 30},
	})

	l.Register(loader.Bundle{
		Name: "usage", Description: "Usage and cost analytics", Dependencies: []string{"registry"},
		Routes: func() (string, http.Handler, bool) {
			return "/api/usage", usage.NewHandler(usageStore).Router(), true
		},
		UI: &loader.UI{Label: "Usage", Icon: "bar-chart", Order: 40},
	})

	l.Register(loader.Bundle{
		Name: "apikeys", Description: "API key management",
		Routes: func() (string, http.Handler, bool) {
			return "/api/keys", apikeys.NewHandler(apikeysStore).Router(), true
		},
	})

	l.Register(loader.Bundle{
		Name: "reports-public", Description: "Unauthenticated share-link viewer", Dependencies: []string{"reports"},
		Routes: func() (string, http.Handler, bool) {
			return "/s", reports.NewHandler(reportsStore).PublicRouter(), false
		},
	})

	root := mux.NewRouter()
	root.Use(httpmw.SecurityHeaders, httpmw.RequestID)

	root.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)
	root.HandleFunc("/ui/manifest", manifestHandler(l)).Methods(http.MethodGet)

	webhookURL := cfg.Twilio.WebhookURL
	if v := os.Getenv("TWILIO_WEBHOOK_URL"); v != "" {
		webhookURL = v
	}
	twilioHandler := twilio.NewHandler(twilio.Config{
		AuthToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
		WebhookURL:     webhookURL,
		AllowedNumbers: mergeAllowed(cfg.Twilio.AllowedNumbers, os.Getenv("TWILIO_ALLOWED_NUMBERS")),
	}, journalStore, boardStore, logsStore)
	root.Handle("/sms/inbound", twilioHandler).Methods(http.MethodPost)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := l.Mount(ctx, root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to mount service bundles: %v\n", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("[MAIN] fleet control plane listening on %s", cfg.ListenAddr)
		serverErr <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server failed: %v\n", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		log.Printf("[MAIN] received %s, shutting down", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[MAIN] graceful shutdown failed: %v", err)
		}
	}

	if err := commitsStore.Close(); err != nil {
		log.Printf("[MAIN] commits store close: %v", err)
	}
	if err := journalStore.Close(); err != nil {
		log.Printf("[MAIN] journal store close: %v", err)
	}
	if err := logsStore.Close(); err != nil {
		log.Printf("[MAIN] logs store close: %v", err)
	}
	if err := feedStore.Close(); err != nil {
		log.Printf("[MAIN] feed store close: %v", err)
	}
}

func dataPath(cfg config.Config, name string) string {
	return filepath.Join(cfg.DataDir, name)
}

func must(err error, what string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open %s: %v\n", what, err)
		os.Exit(1)
	}
}

func mergeAllowed(fromConfig []string, fromEnv string) []string {
	out := append([]string(nil), fromConfig...)
	if fromEnv == "" {
		return out
	}
	for _, n := range strings.Split(fromEnv, ",") {
		n = strings.TrimSpace(n)
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func manifestHandler(l *loader.Loader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(l.UIManifestDoc()); err != nil {
			log.Printf("[MAIN] manifest encode: %v", err)
		}
	}
}
