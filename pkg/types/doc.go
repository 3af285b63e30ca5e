/*
Package types defines the wire frames and domain structs shared by the
broker, directory service, and pub/sub clients.

# Domain model

A Topic is a named channel: a caller-supplied decimal id, a title, and the
publisher name that owns it. A subscription is a (subscriber, topic-id)
pair; the broker keeps these per-subscriber as a set. A BrokerAddr is just
an ip/port pair, used both to identify a broker in the directory's registry
and as the dedup key for a broker's peer link set.

# Wire frames

Every socket in the mesh speaks the same newline-delimited JSON framing
(see package wire). The frame shapes defined here are:

  - AnnounceFrame: the first frame on any new connection, declaring the
    connecting party's role (subscriber, publisher, or broker) and name.
  - RequestFrame: a client command (create, publish, delete, subscribe,
    unsubscribe, list, countSubscriber, showCurrentSubscription) or a
    broker-to-broker sync record; unused fields are left zero.
  - ResponseFrame: a broker's reply to a RequestFrame, carrying a result
    string, a detail payload, and an optional message-type tag used by
    subscribers to tell responses apart from pushes.
  - BroadcastFrame / DeleteNotifyFrame: asynchronous pushes a broker sends
    to a subscriber outside the request/response cycle.
  - DirectoryRegisterRequest/Response, DirectoryQueryRequest/Response: the
    directory service's two request shapes.

# Enumerations

Role, MessageType, SyncAction, and SessionState are string-typed constants
rather than bare strings, so a misspelled role, message-type, sync-action,
or session-state constant fails to compile instead of silently mismatching
at runtime. Command names in RequestFrame are plain strings.

# Errors

The Err* constants are the exact human-readable strings that appear in a
failed response's "detail" field. They are part of the wire contract:
changing the text of an existing one is a breaking change for any client
that matches on it.
*/
package types
