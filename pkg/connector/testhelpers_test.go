// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/aiku/chatbox/pkg/chatbox"
)

const (
	testChannelID = "chatbox-channel"
	testUserID    = "my-user-id"
	testToken     = "test-token"
)

// endpointCall records which API endpoints were hit during a test.
type endpointCall struct {
	Method string
	Path   string
	Body   string
}

// fakeMM is a test helper that wraps an httptest.Server simulating the
// Mattermost API. It records calls and provides canned responses.
type fakeMM struct {
	Server *httptest.Server

	mu     sync.Mutex
	calls  []endpointCall
	posts  []*model.Post
	nextID int

	// Users maps user ID to model.User for GetMe responses.
	Users map[string]*model.User
	// TokenToUser maps bearer tokens to user IDs for GetMe auth.
	TokenToUser map[string]string
	// Channels maps channel ID to model.Channel.
	Channels map[string]*model.Channel
	// FailEndpoints causes specific path prefixes to return 500.
	FailEndpoints map[string]bool
}

func newFakeMM() *fakeMM {
	f := &fakeMM{
		Users:         make(map[string]*model.User),
		TokenToUser:   make(map[string]string),
		Channels:      make(map[string]*model.Channel),
		FailEndpoints: make(map[string]bool),
	}
	f.Users[testUserID] = &model.User{Id: testUserID, Username: "chatbox"}
	f.TokenToUser[testToken] = testUserID
	f.Channels[testChannelID] = &model.Channel{Id: testChannelID, Name: "support"}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	return f
}

func (f *fakeMM) Close() {
	f.Server.Close()
}

func (f *fakeMM) record(method, path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, endpointCall{Method: method, Path: path, Body: body})
}

func (f *fakeMM) Calls() []endpointCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]endpointCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}

func (f *fakeMM) CalledPath(path string) bool {
	for _, c := range f.Calls() {
		if strings.Contains(c.Path, path) {
			return true
		}
	}
	return false
}

// Posts returns the posts created through the API, in order.
func (f *fakeMM) Posts() []*model.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]*model.Post, len(f.posts))
	copy(cp, f.posts)
	return cp
}

// waitPosts polls until at least n posts were created.
func (f *fakeMM) waitPosts(t *testing.T, n int) []*model.Post {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if posts := f.Posts(); len(posts) >= n {
			return posts
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d posts, got %d", n, len(f.Posts()))
	return nil
}

func (f *fakeMM) resolveToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	for tok, uid := range f.TokenToUser {
		if auth == "BEARER "+tok || auth == "Bearer "+tok {
			return uid
		}
	}
	return ""
}

func (f *fakeMM) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.record(r.Method, r.URL.Path, string(body))

	// Check if this endpoint should fail.
	for prefix := range f.FailEndpoints {
		if strings.Contains(r.URL.Path, prefix) {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "fake error"})
			return
		}
	}

	path := r.URL.Path

	switch {
	// GET /api/v4/users/me
	case r.Method == "GET" && path == "/api/v4/users/me":
		uid := f.resolveToken(r)
		if uid == "" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "unauthorized"})
			return
		}
		if u, ok := f.Users[uid]; ok {
			_ = json.NewEncoder(w).Encode(u)
			return
		}
		w.WriteHeader(http.StatusNotFound)

	// GET /api/v4/channels/{channel_id}
	case r.Method == "GET" && strings.HasPrefix(path, "/api/v4/channels/") && !strings.Contains(path[len("/api/v4/channels/"):], "/"):
		chID := path[len("/api/v4/channels/"):]
		if ch, ok := f.Channels[chID]; ok {
			_ = json.NewEncoder(w).Encode(ch)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "channel not found"})

	// POST /api/v4/posts
	case r.Method == "POST" && path == "/api/v4/posts":
		var post model.Post
		_ = json.Unmarshal(body, &post)
		f.mu.Lock()
		f.nextID++
		post.Id = fmt.Sprintf("post-%d", f.nextID)
		f.posts = append(f.posts, &post)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(&post)

	default:
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "not found: " + path})
	}
}

// newWebSocketEvent creates a model.WebSocketEvent for testing handlers.
func newWebSocketEvent(eventType model.WebsocketEventType, channelID string, data map[string]any) *model.WebSocketEvent {
	evt := model.NewWebSocketEvent(eventType, "", channelID, "", nil, "")
	return evt.SetData(data)
}

// newPostedEvent wraps a post the way the server delivers it.
func newPostedEvent(t *testing.T, post *model.Post, senderName string) *model.WebSocketEvent {
	t.Helper()
	raw, err := json.Marshal(post)
	if err != nil {
		t.Fatalf("marshal post: %v", err)
	}
	return newWebSocketEvent(model.WebsocketEventPosted, post.ChannelId, map[string]any{
		"post":        string(raw),
		"sender_name": senderName,
	})
}

// newTestBox returns a running chatbox with a uuid web side and a string
// Mattermost side on a private in-memory database.
func newTestBox(t *testing.T) *chatbox.ChatBox {
	t.Helper()
	cfg := &chatbox.Config{
		Name:  "test-box",
		Debug: true,
		Side1: chatbox.SideConfig{Name: "web", IDType: "uuid"},
		Side2: chatbox.SideConfig{Name: "mattermost", IDType: "string"},
	}
	if err := cfg.PostProcess(); err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	store, err := chatbox.OpenStore(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	box, err := chatbox.New(cfg, store, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- box.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("broker did not stop")
		}
	})
	return box
}

// newTestClient creates a MattermostClient for side 2 of box against a fake
// server. The client is considered connected.
func newTestClient(t *testing.T, box *chatbox.ChatBox, serverURL string) *MattermostClient {
	t.Helper()
	cfg := &Config{ServerURL: serverURL, Token: testToken, ChannelID: testChannelID, BotPrefix: "chatbox_"}
	mc, err := NewMattermostClient(box.Side2(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewMattermostClient: %v", err)
	}
	mc.userID = testUserID
	return mc
}

func getMessage(t *testing.T, mb *chatbox.Mailbox) *chatbox.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := mb.Get(ctx)
	if err != nil {
		t.Fatalf("mailbox Get: %v", err)
	}
	return msg
}
