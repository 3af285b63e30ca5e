// Package broker implements the broker core: the in-memory topic and
// subscription state shared by every connection a broker process holds,
// replicated to peers by a one-hop sync flood, and fanned out to locally
// connected subscribers inside the same critical section that mutates
// state, so a subscriber's view of pushes stays consistent with this
// broker's view of the world.
package broker

import (
	"strconv"
	"sync"

	"github.com/cuemby/relay/pkg/relaylog"
	"github.com/cuemby/relay/pkg/relaymetrics"
	"github.com/cuemby/relay/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Broker holds all mutable state for one broker node, guarded by a single
// coarse mutex. Every read and write of topics, subscriptions, sessions, and
// peer links goes through this lock; there is no finer-grained locking.
type Broker struct {
	mu sync.Mutex

	self types.BrokerAddr

	topics        map[string]types.Topic        // topic id -> topic
	subscriptions map[string]map[string]bool    // subscriber name -> set of topic ids
	subscribers   map[string]*outbound          // subscriber name -> socket
	publishers    map[string]*outbound          // publisher name -> socket
	peers         map[string]*peerLink          // "ip:port" -> link

	log zerolog.Logger
}

// New creates an empty broker advertising self as its own address, so peer
// dial targets that resolve back to self can be filtered out.
func New(self types.BrokerAddr) *Broker {
	return &Broker{
		self:          self,
		topics:        make(map[string]types.Topic),
		subscriptions: make(map[string]map[string]bool),
		subscribers:   make(map[string]*outbound),
		publishers:    make(map[string]*outbound),
		peers:         make(map[string]*peerLink),
		log:           relaylog.WithBroker(relaylog.Component("broker-core"), self.String()),
	}
}

// Self returns the broker's own advertised address.
func (b *Broker) Self() types.BrokerAddr { return b.self }

// NewSessionID mints an id for logging/diagnostics. Sessions are otherwise
// keyed by the announced name, which is trusted as-is and never verified.
func NewSessionID() string { return uuid.NewString() }

func ok(detail interface{}, messageType types.MessageType) types.ResponseFrame {
	return types.ResponseFrame{Result: "success", Detail: detail, MessageType: messageType}
}

func failed(detail string) types.ResponseFrame {
	return types.ResponseFrame{Result: "failed", Detail: detail}
}

func recordResult(command string, resp types.ResponseFrame) {
	relaymetrics.RequestsTotal.WithLabelValues(command, resp.Result).Inc()
}

func (b *Broker) updateGaugesLocked() {
	relaymetrics.TopicsTotal.Set(float64(len(b.topics)))
	subs := 0
	for _, set := range b.subscriptions {
		subs += len(set)
	}
	relaymetrics.SubscriptionsTotal.Set(float64(subs))
	relaymetrics.LocalSubscribersTotal.Set(float64(len(b.subscribers)))
	relaymetrics.LocalPublishersTotal.Set(float64(len(b.publishers)))
	relaymetrics.PeerLinksTotal.Set(float64(len(b.peers)))
}

// CreateTopic registers a new topic under the given publisher, failing if
// the topic id is already taken. The resulting sync record is forwarded to
// every peer link before the lock is released, and also returned for
// callers that want to log or test it.
func (b *Broker) CreateTopic(topicID, title, publisher string) (types.ResponseFrame, *types.RequestFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.topics[topicID]; exists {
		resp := failed(types.ErrAlreadyExists)
		recordResult("create", resp)
		return resp, nil
	}

	b.topics[topicID] = types.Topic{ID: topicID, Title: title, Owner: publisher}
	b.updateGaugesLocked()

	b.log.Info().Str("topic_id", topicID).Str("publisher", publisher).Msg("topic created")

	rec := types.RequestFrame{
		Command:    "sync",
		SyncAction: types.SyncCreate,
		TopicID:    topicID,
		Title:      title,
		Publisher:  publisher,
	}
	b.forwardSyncLocked(rec)

	resp := ok("topic created", "")
	recordResult("create", resp)
	return resp, &rec
}

// PublishMessage delivers message on topicID to every locally connected
// subscriber holding that topic and forwards a sync record to peers,
// failing if publisher doesn't own the topic.
func (b *Broker) PublishMessage(topicID, message, publisher string) (types.ResponseFrame, *types.RequestFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	topic, exists := b.topics[topicID]
	if !exists || topic.Owner != publisher {
		resp := failed(types.ErrNotOwner)
		recordResult("publish", resp)
		return resp, nil
	}

	b.broadcastLocked(topic, message)

	rec := types.RequestFrame{
		Command:    "sync",
		SyncAction: types.SyncPublish,
		TopicID:    topicID,
		Message:    message,
		Publisher:  publisher,
	}
	b.forwardSyncLocked(rec)

	resp := ok("message published", "")
	recordResult("publish", resp)
	return resp, &rec
}

// broadcastLocked pushes a broadcast frame to every locally connected
// subscriber holding topic. Caller must hold b.mu.
func (b *Broker) broadcastLocked(topic types.Topic, message string) {
	frame := types.BroadcastFrame{
		MessageType: types.MessageBroadcast,
		Publisher:   topic.Owner,
		Title:       topic.Title,
		TopicID:     topic.ID,
		Message:     message,
	}
	for subscriber, set := range b.subscriptions {
		if !set[topic.ID] {
			continue
		}
		out, local := b.subscribers[subscriber]
		if !local {
			continue
		}
		if err := out.send(frame); err != nil {
			b.log.Warn().Err(err).Str("subscriber", subscriber).Msg("failed to push broadcast")
			continue
		}
		relaymetrics.BroadcastsPushedTotal.Inc()
	}
}

// DeleteTopic removes a topic the caller owns, notifying every subscriber
// that held it and forwarding a sync record to peers.
func (b *Broker) DeleteTopic(topicID, publisher string) (types.ResponseFrame, *types.RequestFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	topic, exists := b.topics[topicID]
	if !exists || topic.Owner != publisher {
		resp := failed(types.ErrNotOwner)
		recordResult("delete", resp)
		return resp, nil
	}

	b.deleteTopicLocked(topic)
	b.updateGaugesLocked()

	rec := types.RequestFrame{
		Command:    "sync",
		SyncAction: types.SyncDelete,
		TopicID:    topicID,
		Publisher:  publisher,
	}
	b.forwardSyncLocked(rec)

	resp := ok("topic deleted", "")
	recordResult("delete", resp)
	return resp, &rec
}

// deleteTopicLocked removes topic from the topic table, strips it from
// every subscription set, and notifies locally connected subscribers that
// held it. Caller must hold b.mu.
func (b *Broker) deleteTopicLocked(topic types.Topic) {
	delete(b.topics, topic.ID)

	entry := types.TopicListEntry{ID: topic.ID, Title: topic.Title, Publisher: topic.Owner}
	for subscriber, set := range b.subscriptions {
		if !set[topic.ID] {
			continue
		}
		delete(set, topic.ID)
		if out, local := b.subscribers[subscriber]; local {
			b.pushDeleteNotifyLocked(out, subscriber, []types.TopicListEntry{entry})
		}
	}

	b.log.Info().Str("topic_id", topic.ID).Str("publisher", topic.Owner).Msg("topic deleted")
}

func (b *Broker) pushDeleteNotifyLocked(out *outbound, subscriber string, entries []types.TopicListEntry) {
	frame := types.DeleteNotifyFrame{MessageType: types.MessageDeleteNotify, DeletedTopics: entries}
	if err := out.send(frame); err != nil {
		b.log.Warn().Err(err).Str("subscriber", subscriber).Msg("failed to push deleteNotify")
		return
	}
	relaymetrics.DeleteNotifiesPushedTotal.Inc()
}

// Subscribe adds topicID to subscriber's subscription set, failing if the
// topic doesn't exist or the subscriber already holds it.
func (b *Broker) Subscribe(topicID, subscriber string) (types.ResponseFrame, *types.RequestFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.topics[topicID]; !exists {
		resp := failed(types.ErrNoSuchTopic)
		recordResult("subscribe", resp)
		return resp, nil
	}

	set := b.subscriptions[subscriber]
	if set == nil {
		set = make(map[string]bool)
		b.subscriptions[subscriber] = set
	}
	if set[topicID] {
		resp := failed(types.ErrAlreadySubscribed)
		recordResult("subscribe", resp)
		return resp, nil
	}
	set[topicID] = true
	b.updateGaugesLocked()

	rec := types.RequestFrame{
		Command:    "sync",
		SyncAction: types.SyncSubscribe,
		TopicID:    topicID,
		Subscriber: subscriber,
	}
	b.forwardSyncLocked(rec)

	resp := ok("subscribed", types.MessageResponse)
	recordResult("subscribe", resp)
	return resp, &rec
}

// Unsubscribe removes topicID from subscriber's subscription set, failing
// if the subscriber didn't hold it.
func (b *Broker) Unsubscribe(topicID, subscriber string) (types.ResponseFrame, *types.RequestFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.subscriptions[subscriber]
	if set == nil || !set[topicID] {
		resp := failed(types.ErrNotSubscribed)
		recordResult("unsubscribe", resp)
		return resp, nil
	}
	delete(set, topicID)
	b.updateGaugesLocked()

	rec := types.RequestFrame{
		Command:    "sync",
		SyncAction: types.SyncUnsubscribe,
		TopicID:    topicID,
		Subscriber: subscriber,
	}
	b.forwardSyncLocked(rec)

	resp := ok("unsubscribed", types.MessageResponse)
	recordResult("unsubscribe", resp)
	return resp, &rec
}

// ListTopics returns every topic known to this broker.
func (b *Broker) ListTopics() types.ResponseFrame {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.topics) == 0 {
		resp := failed(types.ErrEmptyListing)
		recordResult("list", resp)
		return resp
	}

	entries := make([]types.TopicListEntry, 0, len(b.topics))
	for _, t := range b.topics {
		entries = append(entries, types.TopicListEntry{ID: t.ID, Title: t.Title, Publisher: t.Owner})
	}
	resp := ok(entries, types.MessageList)
	recordResult("list", resp)
	return resp
}

// CountSubscribers reports, for every topic publisher owns, how many
// subscribers currently hold it. Fails outright if publisher owns nothing;
// that check runs once up front rather than per topic.
func (b *Broker) CountSubscribers(publisher string) types.ResponseFrame {
	b.mu.Lock()
	defer b.mu.Unlock()

	owned := make([]types.Topic, 0)
	for _, t := range b.topics {
		if t.Owner == publisher {
			owned = append(owned, t)
		}
	}
	if len(owned) == 0 {
		resp := failed(types.ErrNoTopicsOwned)
		recordResult("countSubscriber", resp)
		return resp
	}

	entries := make([]types.SubscriberCountEntry, 0, len(owned))
	for _, t := range owned {
		count := 0
		for _, set := range b.subscriptions {
			if set[t.ID] {
				count++
			}
		}
		entries = append(entries, types.SubscriberCountEntry{
			ID:        t.ID,
			Title:     t.Title,
			Publisher: t.Owner,
			Count:     strconv.Itoa(count),
		})
	}

	resp := ok(entries, "")
	recordResult("countSubscriber", resp)
	return resp
}

// ShowCurrentSubscription lists every topic subscriber currently holds.
func (b *Broker) ShowCurrentSubscription(subscriber string) types.ResponseFrame {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.subscriptions[subscriber]
	if len(set) == 0 {
		resp := failed(types.ErrNoSubscriptions)
		recordResult("showCurrentSubscription", resp)
		return resp
	}

	entries := make([]types.TopicListEntry, 0, len(set))
	for topicID := range set {
		if t, exists := b.topics[topicID]; exists {
			entries = append(entries, types.TopicListEntry{ID: t.ID, Title: t.Title, Publisher: t.Owner})
		}
	}
	resp := ok(entries, types.MessageCurrent)
	recordResult("showCurrentSubscription", resp)
	return resp
}

// OnPublisherDisconnect deletes every topic the publisher owns, batching one
// deleteNotify per affected
// subscriber and one sync record forwarded to every peer link. Returns nil
// if the publisher owned nothing, in which case nothing is forwarded.
func (b *Broker) OnPublisherDisconnect(name string) *types.RequestFrame {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.publishers, name)

	var owned []string
	for id, t := range b.topics {
		if t.Owner == name {
			owned = append(owned, id)
		}
	}
	if len(owned) == 0 {
		b.updateGaugesLocked()
		return nil
	}

	affected := make(map[string][]types.TopicListEntry)
	for _, id := range owned {
		topic := b.topics[id]
		delete(b.topics, id)
		entry := types.TopicListEntry{ID: topic.ID, Title: topic.Title, Publisher: topic.Owner}
		for subscriber, set := range b.subscriptions {
			if set[id] {
				delete(set, id)
				affected[subscriber] = append(affected[subscriber], entry)
			}
		}
	}

	for subscriber, entries := range affected {
		if out, local := b.subscribers[subscriber]; local {
			b.pushDeleteNotifyLocked(out, subscriber, entries)
		}
	}

	b.updateGaugesLocked()
	b.log.Info().Str("publisher", name).Int("topics", len(owned)).Msg("publisher disconnected, topics cascaded")

	rec := types.RequestFrame{
		Command:    "sync",
		SyncAction: types.SyncDeleteAllTopicsByPublisher,
		TopicIDs:   owned,
		Publisher:  name,
	}
	b.forwardSyncLocked(rec)
	return &rec
}

// OnSubscriberDisconnect drops subscriber and its subscriptions. No local
// notification is emitted; only peers need to learn of this.
func (b *Broker) OnSubscriberDisconnect(name string) *types.RequestFrame {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, name)
	delete(b.subscriptions, name)
	b.updateGaugesLocked()

	b.log.Info().Str("subscriber", name).Msg("subscriber disconnected")

	rec := types.RequestFrame{
		Command:    "sync",
		SyncAction: types.SyncDeleteAllTopicsBySubscriber,
		Subscriber: name,
	}
	b.forwardSyncLocked(rec)
	return &rec
}
