package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/planora/hub/internal/config"
	"github.com/planora/hub/internal/db"
	"github.com/planora/hub/internal/router"
	"github.com/planora/hub/internal/schema"
	"github.com/planora/hub/internal/service"
)

func main() {
	cfg := config.Load()

	database, err := db.Open(cfg)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	defer database.Close()

	if err := db.Migrate(database, cfg.DBDriver); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	log.Println("database migrations applied")

	reg, err := schema.NewPlannerRegistry()
	if err != nil {
		log.Fatalf("entity registry: %v", err)
	}

	// Create the shared feed so that the reminder sweeper and the HTTP
	// handlers use the same EventFeed instance.
	feed := service.NewEventFeed()
	sweeper := service.NewReminderSweeper(database, feed)
	sweeper.Window = time.Duration(cfg.ReminderHours) * time.Hour

	handler := router.New(cfg, database, reg, feed)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams need unlimited write timeout
		IdleTimeout:  120 * time.Second,
	}

	// Root context cancelled on shutdown; propagates to the sweeper.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	go sweeper.Start(rootCtx)

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("planora hub listening on :%s (driver=%s)", cfg.Port, cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-done
	log.Println("shutting down...")
	rootCancel() // stop sweeper

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	log.Println("stopped")
}
