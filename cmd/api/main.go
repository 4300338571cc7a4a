package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pactum.org/internal/gate"
	"pactum.org/internal/httpapi"
	"pactum.org/internal/inventory"
	"pactum.org/internal/ledger"
	"pactum.org/internal/lifecycle"
	"pactum.org/internal/obs"
	"pactum.org/internal/seal"
	"pactum.org/internal/store/pg"
	"pactum.org/internal/stream"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		db         *sql.DB
		eventStore ledger.Store
		itemStore  inventory.Store
		stateStore lifecycle.StateStore
	)
	if dsn := os.Getenv("PACTUM_PG_DSN"); dsn != "" {
		store, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db = store.DB()
		eventStore = store
		itemStore = store
		stateStore = store
	} else {
		// No DSN: run fully in memory for local development.
		log.Println("PACTUM_PG_DSN not set, using in-memory stores")
		eventStore = ledger.NewMemStore()
		itemStore = inventory.NewMemStore()
		stateStore = lifecycle.NewMemStateStore()
	}

	sealer := buildSealer()
	log.Printf("seal provider: %s", sealer.Provider())

	appender := ledger.NewAppender(eventStore, sealer)
	verifier := ledger.NewVerifier(eventStore)
	inv := inventory.NewService(itemStore, appender)
	g := gate.New(itemStore, gate.DefaultRules()...)
	mgr := lifecycle.NewManager(stateStore, g, appender)

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, httpapi.Deps{
		Appender:  appender,
		Verifier:  verifier,
		Events:    eventStore,
		Inventory: inv,
		Lifecycle: mgr,
		Gate:      g,
		Stream:    stream.New(),
	})

	addr := os.Getenv("PACTUM_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// Seal polling can hold an append for up to 30s; leave headroom.
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Starting pactum-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

// buildSealer selects the seal strategy once at startup; per-request
// branching between providers is deliberately impossible.
func buildSealer() seal.Sealer {
	switch provider := os.Getenv("PACTUM_SEALER"); provider {
	case "", "stub":
		secret := os.Getenv("PACTUM_STUB_SEAL_SECRET")
		if secret == "" {
			secret = "dev-only-stub-secret"
		}
		s, err := seal.NewStub([]byte(secret))
		if err != nil {
			log.Fatalf("stub sealer: %v", err)
		}
		return s
	case "qtsp":
		s, err := seal.NewQTSP(seal.QTSPConfig{
			BaseURL:       os.Getenv("PACTUM_QTSP_BASE_URL"),
			TokenURL:      os.Getenv("PACTUM_QTSP_TOKEN_URL"),
			ClientID:      os.Getenv("PACTUM_QTSP_CLIENT_ID"),
			ClientSecret:  os.Getenv("PACTUM_QTSP_CLIENT_SECRET"),
			EvidenceGroup: os.Getenv("PACTUM_QTSP_EVIDENCE_GROUP"),
		})
		if err != nil {
			log.Fatalf("qtsp sealer: %v", err)
		}
		return s
	default:
		log.Fatalf("unknown PACTUM_SEALER value %q (want stub or qtsp)", os.Getenv("PACTUM_SEALER"))
		return nil
	}
}
