package broker

import (
	"github.com/cuemby/relay/pkg/relaymetrics"
	"github.com/cuemby/relay/pkg/types"
)

// ApplySync applies a sync record received from a peer broker to local
// state. It is the receiver-side twin of the sync records
// CreateTopic/PublishMessage/... emit, and never re-emits a sync record of
// its own, since replication is a one-hop flood.
func (b *Broker) ApplySync(rec types.RequestFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	relaymetrics.SyncRecordsAppliedTotal.WithLabelValues(string(rec.SyncAction)).Inc()

	switch rec.SyncAction {
	case types.SyncCreate:
		b.topics[rec.TopicID] = types.Topic{ID: rec.TopicID, Title: rec.Title, Owner: rec.Publisher}

	case types.SyncDelete:
		if topic, exists := b.topics[rec.TopicID]; exists && topic.Owner == rec.Publisher {
			b.deleteTopicLocked(topic)
		}

	case types.SyncPublish:
		if topic, exists := b.topics[rec.TopicID]; exists {
			b.broadcastLocked(topic, rec.Message)
		}

	case types.SyncSubscribe:
		if _, exists := b.topics[rec.TopicID]; exists {
			set := b.subscriptions[rec.Subscriber]
			if set == nil {
				set = make(map[string]bool)
				b.subscriptions[rec.Subscriber] = set
			}
			set[rec.TopicID] = true
		}

	case types.SyncUnsubscribe:
		if set := b.subscriptions[rec.Subscriber]; set != nil {
			delete(set, rec.TopicID)
		}

	case types.SyncDeleteAllTopicsByPublisher:
		for _, id := range rec.TopicIDs {
			if topic, exists := b.topics[id]; exists && topic.Owner == rec.Publisher {
				b.deleteTopicLocked(topic)
			}
		}

	case types.SyncDeleteAllTopicsBySubscriber:
		delete(b.subscriptions, rec.Subscriber)

	default:
		b.log.Warn().Str("sync_action", string(rec.SyncAction)).Msg("unknown sync action, dropped")
		return
	}

	b.updateGaugesLocked()
}
