// Copyright 2024-2026 Aiku AI

package main

import (
	"context"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aiku/chatbox/pkg/chatbox"
	"github.com/aiku/chatbox/pkg/connector"
)

// runner is a long-lived component started by run.
type runner interface {
	Run(ctx context.Context) error
}

// run opens the store, wires both adapters to a chatbox and serves until ctx
// is done or a component fails.
func run(ctx context.Context, cfg *Config, log zerolog.Logger) error {
	store, err := chatbox.OpenStore(ctx, &cfg.Chatbox, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close store")
		}
	}()

	// SIGUSR1 dumps the counters to stderr.
	sink := metrics.NewInmemSink(10*time.Second, time.Minute)
	signal := metrics.DefaultInmemSignal(sink)
	defer signal.Stop()

	box, runners, err := build(cfg, store, log, chatbox.WithMetricSink(sink))
	if err != nil {
		return err
	}
	log.Info().
		Str("name", box.Name()).
		Str("side1", box.Side1().Name()).
		Str("side2", box.Side2().Name()).
		Msg("Chatbox ready")

	eg, ctx := errgroup.WithContext(ctx)
	for _, r := range runners {
		eg.Go(func() error {
			return r.Run(ctx)
		})
	}
	err = eg.Wait()
	log.Info().Msg("Chatbox stopped")
	return err
}

// build creates the chatbox and the components that must run alongside it:
// the broker, the web server and, when configured, the Mattermost client.
func build(cfg *Config, store *chatbox.Store, log zerolog.Logger, opts ...chatbox.Option) (*chatbox.ChatBox, []runner, error) {
	box, err := chatbox.New(&cfg.Chatbox, store, log, opts...)
	if err != nil {
		return nil, nil, err
	}
	runners := []runner{box, connector.NewWebServer(box, &cfg.Network, log)}
	if cfg.Network.MattermostEnabled() {
		mm, err := connector.NewMattermostClient(box.Side2(), &cfg.Network, log)
		if err != nil {
			return nil, nil, err
		}
		runners = append(runners, mm)
	} else {
		log.Warn().Msg("No Mattermost server configured, new web clients cannot be paired")
	}
	return box, runners, nil
}
