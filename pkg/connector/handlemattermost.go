// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/aiku/chatbox/pkg/chatbox"
)

// handleEvent dispatches a Mattermost WebSocket event. Only new posts are
// relayed; edits, deletions and reactions have no counterpart on the web side.
func (m *MattermostClient) handleEvent(ctx context.Context, evt *model.WebSocketEvent) {
	switch evt.EventType() {
	case model.WebsocketEventPosted:
		m.handlePosted(ctx, evt)
	default:
		m.log.Trace().Str("event_type", string(evt.EventType())).Msg("Unhandled event type")
	}
}

// parsePostedEvent extracts and validates a post from a WebSocket event,
// applying all echo prevention layers. Returns (nil, nil) to skip silently,
// (nil, err) to log an error, or (post, nil) to proceed.
func (m *MattermostClient) parsePostedEvent(evt *model.WebSocketEvent) (*model.Post, error) {
	postJSON, ok := evt.GetData()["post"].(string)
	if !ok {
		return nil, fmt.Errorf("posted event missing post data")
	}

	var post model.Post
	if err := json.Unmarshal([]byte(postJSON), &post); err != nil {
		return nil, fmt.Errorf("failed to unmarshal post: %w", err)
	}

	// Echo prevention: skip own posts, including thread roots and notices.
	if post.UserId == m.userID {
		return nil, nil
	}

	// Echo prevention: skip non-default post types (system messages).
	if post.Type != "" && post.Type != model.PostTypeDefault {
		return nil, nil
	}

	// Echo prevention: skip posts from usernames matching known bridge patterns.
	senderName, _ := evt.GetData()["sender_name"].(string)
	senderName = strings.TrimPrefix(senderName, "@")
	if senderName != "" && isBridgeUsername(senderName, m.cfg.BotPrefix) {
		m.log.Debug().
			Str("post_id", post.Id).
			Str("username", senderName).
			Msg("Skipping bridge username post (echo prevention)")
		return nil, nil
	}

	return &post, nil
}

func (m *MattermostClient) handlePosted(ctx context.Context, evt *model.WebSocketEvent) {
	post, err := m.parsePostedEvent(evt)
	if err != nil {
		m.log.Warn().Err(err).Msg("Failed to parse posted event")
		return
	}
	if post == nil {
		return
	}
	// Only replies inside the chatbox channel belong to a connection.
	if post.ChannelId != m.cfg.ChannelID || post.RootId == "" {
		return
	}
	log := m.log.With().
		Str("post_id", post.Id).
		Str("root_id", post.RootId).
		Str("user_id", post.UserId).
		Logger()

	thread := chatbox.StringID(post.RootId)
	if !m.channel.IsActive(thread) {
		_, err = m.channel.Access(ctx, thread, false)
		if errors.Is(err, chatbox.ErrConnectionNotFound) {
			log.Debug().Msg("Reply in a thread that is not a chatbox connection")
			return
		} else if err != nil {
			log.Err(err).Msg("Failed to reactivate thread")
			return
		}
		log.Debug().Msg("Reactivated thread")
	}

	if err = m.channel.Submit(ctx, thread, post.Message); err != nil {
		log.Err(err).Msg("Failed to submit post")
		return
	}
	log.Debug().Msg("Submitted post")
}

// isBridgeUsername reports whether a Mattermost username belongs to a
// bridge-managed account whose posts must not be relayed.
func isBridgeUsername(username, botPrefix string) bool {
	switch {
	case username == "chatbox-bridge":
		return true
	case botPrefix != "" && strings.HasPrefix(username, botPrefix):
		return true
	default:
		return false
	}
}
