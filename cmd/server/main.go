package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/astromechza/voxelpuzzle/pkg/catalog"
	"github.com/astromechza/voxelpuzzle/pkg/registry"
	"github.com/astromechza/voxelpuzzle/pkg/viz"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	addrVar := flag.String("addr", "localhost:8080", "the address to listen on")
	catalogVar := flag.String("catalog", "catalog.sqlite3", "path to the map catalog database")
	sessionTTLVar := flag.Duration("session-ttl", 0, "evict sessions idle for this long (0 keeps them forever)")
	seqVar := flag.Bool("sequence-numbers", false, "stamp authoritative deltas with per-session sequence numbers")
	flag.Parse()

	slog.Info("Opening catalog")
	cat, err := catalog.Open(*catalogVar)
	if err != nil {
		return err
	}
	defer cat.Close()

	reg := registry.New(cat, registry.Options{
		SessionTTL:      *sessionTTLVar,
		SequenceNumbers: *seqVar,
	})

	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			slog.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
		})
	})
	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusNoContent)
	})
	r.Methods(http.MethodGet).Path("/maps").HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		entries, err := cat.List(request.Context())
		if err != nil {
			slog.Error("failed to list maps", "err", err)
			writer.WriteHeader(http.StatusInternalServerError)
			return
		}
		writer.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(writer).Encode(entries); err != nil {
			slog.Error("failed to write out", "err", err)
		}
	})
	r.Methods(http.MethodGet).Path("/ws").HandlerFunc(reg.ServeWS)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		reg.Run(ctx)
	}()

	httpServer := &http.Server{Addr: *addrVar, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("listening", "addr", *addrVar)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server listen failed", "err", err)
		}
	}()

	exit := make(chan os.Signal, 1) // we need to reserve to buffer size 1, so the notifier are not blocked
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	slog.Info("Signal caught", "sig", sig)
	cancel()
	_ = httpServer.Close()

	wg.Wait()

	for _, snap := range reg.Snapshots() {
		path, err := snap.WriteFile(os.TempDir())
		if err != nil {
			slog.Error("failed to dump", "session", snap.ID, "err", err)
			continue
		}
		slog.Info("dumped", "session", snap.ID, "path", path)
		if svgPath, pngPath, err := viz.RenderToTemp(snap.PieceMap(), snap.StateMap()); err != nil {
			slog.Error("failed to render", "session", snap.ID, "err", err)
		} else {
			slog.Info("rendered", "session", snap.ID, "svg", "file://"+svgPath, "png", "file://"+pngPath)
		}
	}

	return nil
}
