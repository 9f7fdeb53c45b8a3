package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/crawlsource/store/memory"
	"github.com/arloliu/crawlsource/store/natskv"
	"github.com/arloliu/crawlsource/store/sqlite"
	"github.com/arloliu/crawlsource/types"
)

// backend is an opened partition store plus whatever must be closed with it.
type backend struct {
	store types.PartitionStore
	// js is set for nats stores so the JetStream buffer can share the connection.
	js      jetstream.JetStream
	closers []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openStore parses a store URI: memory, sqlite:<path>, nats:<url> or nats:embedded.
func openStore(ctx context.Context, uri, bucket string) (*backend, error) {
	kind, arg, _ := strings.Cut(uri, ":")

	switch kind {
	case "memory":
		return &backend{store: memory.New()}, nil
	case "sqlite":
		if arg == "" {
			return nil, fmt.Errorf("sqlite store needs a path: sqlite:<path>")
		}
		st, err := sqlite.Open(ctx, arg)
		if err != nil {
			return nil, err
		}

		return &backend{store: st, closers: []func(){func() { _ = st.Close() }}}, nil
	case "nats":
		return openNATS(ctx, arg, bucket)
	default:
		return nil, fmt.Errorf("unknown store %q", uri)
	}
}

func openNATS(ctx context.Context, url, bucket string) (*backend, error) {
	b := &backend{}

	if url == "" {
		url = nats.DefaultURL
	}
	if url == "embedded" {
		srv, shutdown, err := startEmbeddedNATS()
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, shutdown)
		url = srv.ClientURL()
	}

	nc, err := nats.Connect(url, nats.Name("crawlsource"), nats.Timeout(5*time.Second))
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	b.closers = append(b.closers, nc.Close)

	js, err := jetstream.New(nc)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	st, err := natskv.New(ctx, js, natskv.Config{Bucket: bucket})
	if err != nil {
		b.Close()
		return nil, err
	}
	b.store = st
	b.js = js

	return b, nil
}

// startEmbeddedNATS runs a JetStream-enabled server on a random local port.
//
// The returned func stops the server and removes its JetStream storage.
func startEmbeddedNATS() (*server.Server, func(), error) {
	storeDir, err := os.MkdirTemp("", "crawlsource-nats-")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create JetStream store dir: %w", err)
	}

	srv, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      server.RANDOM_PORT,
		JetStream: true,
		StoreDir:  filepath.Clean(storeDir),
		NoLog:     true,
		NoSigs:    true,
	})
	if err != nil {
		_ = os.RemoveAll(storeDir)
		return nil, nil, fmt.Errorf("failed to create NATS server: %w", err)
	}

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		_ = os.RemoveAll(storeDir)

		return nil, nil, fmt.Errorf("NATS server not ready within timeout")
	}

	shutdown := func() {
		srv.Shutdown()
		srv.WaitForShutdown()
		_ = os.RemoveAll(storeDir)
	}

	return srv, shutdown, nil
}
