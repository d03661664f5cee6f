// Copyright 2024-2026 Aiku AI

// Package chatbox correlates participants of two independent services and
// relays their messages with durable history.
//
// Each side of the bridge has its own identifier namespace. A [Connection]
// ties one side-1 id to one side-2 id; it is created the first time either
// side accesses an unknown id, by asking the other side's [Allocator] for a
// partner id, and loaded back from the [Store] on every later access.
//
// # Core Types
//
// [ServiceChannel] is the single point of contact for one side. Adapters call
// Access to activate a participant, Submit to send text, Mailbox to receive
// relayed messages and Deactivate when the participant goes away. Adapters
// that prefer pushes register a MessageSink instead of draining mailboxes.
//
// [Coordinator] implements the lookup-or-create protocol. Concurrent accesses
// of the same id share a single resolution.
//
// [Broker] drains both sides' queues, persists every message and delivers it
// to both sides. The originating side receives its own message back; adapters
// that must not echo filter on [Message.Origin].
//
// [ChatBox] wires the two channels, the coordinator, the broker and the store
// together.
package chatbox
