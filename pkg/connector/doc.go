// Copyright 2024-2026 Aiku AI

// Package connector serves the two sides of a chatbox over real networks.
//
// [WebServer] is side 1: browsers load a small page, open a WebSocket at
// /ws/{uid} and become participants identified by their uid. Messages from
// the other side are pushed to the socket as JSON frames, rendered to HTML
// when they carry markdown.
//
// [MattermostClient] is side 2: every connection is a thread in one
// Mattermost channel. The client allocates the thread when a new web
// participant shows up, posts web messages as replies in it, and relays
// replies written in the thread back to the web participant.
//
// # Echo Prevention
//
// Posts by the client's own account, system posts and posts from usernames
// matching the configured bot prefix are never relayed.
package connector
