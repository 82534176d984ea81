// ABOUTME: Entry point for the Tsukimi edge node
// ABOUTME: Wires the scanner, fabric, session client, selector, and audio engine
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Izu-lab/tsukimi-node/internal/audioengine"
	"github.com/Izu-lab/tsukimi-node/internal/config"
	"github.com/Izu-lab/tsukimi-node/internal/discovery"
	"github.com/Izu-lab/tsukimi-node/internal/fabric"
	"github.com/Izu-lab/tsukimi-node/internal/masterclock"
	"github.com/Izu-lab/tsukimi-node/internal/scanner"
	"github.com/Izu-lab/tsukimi-node/internal/selector"
	"github.com/Izu-lab/tsukimi-node/internal/session"
	"github.com/Izu-lab/tsukimi-node/pkg/audio/output"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Parse()

	f, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	multiWriter := io.MultiWriter(os.Stdout, f)
	log.SetOutput(multiWriter)

	scanLog := logrus.New()
	scanLog.SetOutput(multiWriter)
	sessionLog := logrus.New()
	sessionLog.SetOutput(multiWriter)
	selectorLog := logrus.New()
	selectorLog.SetOutput(multiWriter)
	if cfg.Debug {
		scanLog.SetLevel(logrus.DebugLevel)
		sessionLog.SetLevel(logrus.DebugLevel)
		selectorLog.SetLevel(logrus.DebugLevel)
	}

	grpcAddr := cfg.GRPCAddr
	if grpcAddr == "" && cfg.DiscoverGRPC {
		mgr := discovery.NewManager(discovery.Config{})
		server, err := mgr.FindServer()
		mgr.Stop()
		if err != nil {
			log.Fatalf("mdns discovery failed and --grpc-addr was not set: %v", err)
		}
		grpcAddr = fmt.Sprintf("%s:%d", server.Host, server.Port)
		log.Printf("discovered session server at %s", grpcAddr)
	}
	if grpcAddr == "" {
		log.Fatal("--grpc-addr is required (or pass --discover-grpc)")
	}

	log.Printf("starting Tsukimi node: %s", cfg.NodeName)
	log.Printf("session server: %s", grpcAddr)
	log.Printf("asset directory: %s", cfg.AssetDir)

	fab := fabric.New()
	clock := masterclock.New()

	shared, err := output.NewSharedContext(cfg.OutputSampleRate, 2)
	if err != nil {
		log.Fatalf("audio output: %v", err)
	}

	sc := scanner.New(fab, scanLog)
	sel := selector.New(fab, cfg.IncrementHost, selectorLog)
	engine := audioengine.New(fab, sel, clock, shared, cfg.AssetDir, cfg.OutputSampleRate, log.Default())
	sessionClient := session.New(grpcAddr, fab, sessionLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("received %v, shutting down", sig)
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sc.Start(gctx) })
	g.Go(func() error { fab.RunForwarder(gctx); return nil })
	g.Go(func() error { fab.RunEnabledListener(gctx); return nil })
	g.Go(func() error { sel.Run(gctx); return nil })
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error { return sessionClient.Run(gctx) })

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		log.Printf("node stopped with error: %v", err)
	}

	log.Printf("node stopped")
}
