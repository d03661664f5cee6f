// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/aiku/chatbox/pkg/chatbox"
)

const reconnectDelay = 5 * time.Second

// MattermostClient serves side 2 of a chatbox. Every connection is one
// thread in the configured channel: the root post is created when a web
// client first shows up, and replies in that thread are relayed back.
type MattermostClient struct {
	channel *chatbox.ServiceChannel
	cfg     *Config

	client   *model.Client4
	wsClient *model.WebSocketClient
	userID   string

	stopOnce sync.Once
	stopChan chan struct{}
	log      zerolog.Logger
}

var (
	_ chatbox.Allocator            = (*MattermostClient)(nil)
	_ chatbox.MessageSink          = (*MattermostClient)(nil)
	_ chatbox.ReachableListener    = (*MattermostClient)(nil)
	_ chatbox.DeactivationListener = (*MattermostClient)(nil)
)

// NewMattermostClient creates a client for the given side and registers it
// as that side's allocator and listeners. The side must use string ids,
// which hold Mattermost post ids.
func NewMattermostClient(channel *chatbox.ServiceChannel, cfg *Config, log zerolog.Logger) (*MattermostClient, error) {
	if channel.Kind() != chatbox.KindString {
		return nil, fmt.Errorf("%w: mattermost side needs string ids, %s is declared as %s",
			chatbox.ErrIdentityType, channel.Name(), channel.Kind())
	}
	mc := &MattermostClient{
		channel:  channel,
		cfg:      cfg,
		client:   model.NewAPIv4Client(cfg.ServerURL),
		stopChan: make(chan struct{}),
		log:      log.With().Str("component", "mm_client").Logger(),
	}
	mc.client.SetToken(cfg.Token)
	channel.SetAllocator(mc)
	channel.SetMessageSink(mc)
	channel.SetReachableListener(mc)
	channel.SetDeactivationListener(mc)
	return mc, nil
}

// Connect verifies the session and the chatbox channel, then opens the
// WebSocket event stream.
func (m *MattermostClient) Connect(ctx context.Context) error {
	m.log.Info().Str("server_url", m.cfg.ServerURL).Msg("Connecting to Mattermost")

	me, _, err := m.client.GetMe(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to verify Mattermost session: %w", err)
	}
	m.userID = me.Id
	m.log.Info().Str("user_id", me.Id).Str("username", me.Username).Msg("Authenticated")

	ch, _, err := m.client.GetChannel(ctx, m.cfg.ChannelID, "")
	if err != nil {
		return fmt.Errorf("failed to get channel %s: %w", m.cfg.ChannelID, err)
	}
	m.log.Info().Str("channel_id", ch.Id).Str("channel_name", ch.Name).Msg("Using chatbox channel")

	return m.connectWebSocket()
}

func (m *MattermostClient) connectWebSocket() error {
	wsURL := httpToWS(m.cfg.ServerURL)
	wsClient, err := model.NewWebSocketClient4(wsURL, m.client.AuthToken)
	if err != nil {
		return fmt.Errorf("failed to create websocket client: %w", err)
	}
	wsClient.Listen()
	m.wsClient = wsClient
	m.log.Info().Str("ws_url", wsURL).Msg("WebSocket connected")
	return nil
}

// httpToWS converts an HTTP(S) URL to a WS(S) URL.
func httpToWS(url string) string {
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	if strings.HasPrefix(url, "http://") {
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}

// Run connects and relays Mattermost events until ctx is done.
func (m *MattermostClient) Run(ctx context.Context) error {
	if err := m.Connect(ctx); err != nil {
		return err
	}
	defer m.Disconnect()
	for {
		if !m.listenWebSocket(ctx) {
			return nil
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-m.stopChan:
				return nil
			case <-time.After(reconnectDelay):
			}
			if err := m.connectWebSocket(); err != nil {
				m.log.Err(err).Msg("Failed to reconnect WebSocket")
				continue
			}
			break
		}
	}
}

// listenWebSocket consumes events until the client is stopped, in which case
// it returns false, or the event stream closes, in which case it returns true.
func (m *MattermostClient) listenWebSocket(ctx context.Context) bool {
	events := m.wsClient.EventChannel
	for {
		select {
		case <-ctx.Done():
			return false
		case <-m.stopChan:
			return false
		case evt, ok := <-events:
			if !ok {
				m.log.Warn().Msg("WebSocket event channel closed, reconnecting")
				return true
			}
			if evt == nil {
				continue
			}
			m.handleEvent(ctx, evt)
		}
	}
}

// Disconnect closes the WebSocket connection and stops the event loop.
func (m *MattermostClient) Disconnect() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
	if m.wsClient != nil {
		m.wsClient.Close()
	}
}

// Allocate opens a new thread for a web client and returns its root post id.
func (m *MattermostClient) Allocate(ctx context.Context, peerID chatbox.ID) (chatbox.ID, error) {
	post, _, err := m.client.CreatePost(ctx, &model.Post{
		ChannelId: m.cfg.ChannelID,
		Message:   fmt.Sprintf("new client access: `%s`", peerID),
	})
	if err != nil {
		return chatbox.ID{}, fmt.Errorf("failed to create thread: %w", err)
	}
	m.log.Info().
		Str("root_id", post.Id).
		Str("web_id", peerID.String()).
		Msg("Created thread for new client")
	return chatbox.StringID(post.Id), nil
}

// OnMessage posts web client messages into their thread. Messages that came
// from Mattermost are already there.
func (m *MattermostClient) OnMessage(ctx context.Context, msg *chatbox.Message) {
	if msg.Origin == m.channel.Side() {
		return
	}
	m.reply(ctx, msg.RecipientID(), msg.Content)
}

func (m *MattermostClient) OnReachable(ctx context.Context, conn *chatbox.Connection, _ chatbox.Side) {
	m.reply(ctx, conn.SideID(m.channel.Side()), "client connected!")
}

func (m *MattermostClient) OnDeactivated(ctx context.Context, conn *chatbox.Connection, _ chatbox.Side) {
	m.reply(ctx, conn.SideID(m.channel.Side()), "client disconnected")
}

func (m *MattermostClient) reply(ctx context.Context, thread chatbox.ID, text string) {
	_, _, err := m.client.CreatePost(ctx, &model.Post{
		ChannelId: m.cfg.ChannelID,
		RootId:    thread.String(),
		Message:   text,
	})
	if err != nil {
		m.log.Err(err).Str("root_id", thread.String()).Msg("Failed to post reply")
	}
}
