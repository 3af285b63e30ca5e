// Package relaymetrics exposes Prometheus metrics describing broker-mesh
// quantities: topic and subscription counts, peer link counts, sync
// traffic, and request outcomes.
package relaymetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TopicsTotal is the current size of a broker's topic table.
	TopicsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_topics_total",
		Help: "Current number of topics known to this broker.",
	})

	// SubscriptionsTotal is the total number of (subscriber, topic) pairs.
	SubscriptionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_subscriptions_total",
		Help: "Current number of subscriptions known to this broker.",
	})

	// LocalSubscribersTotal is the number of subscribers physically
	// connected to this broker.
	LocalSubscribersTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_local_subscribers_total",
		Help: "Number of subscriber sessions held by this broker.",
	})

	// LocalPublishersTotal is the number of publishers physically
	// connected to this broker.
	LocalPublishersTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_local_publishers_total",
		Help: "Number of publisher sessions held by this broker.",
	})

	// PeerLinksTotal is the size of this broker's peer link set.
	PeerLinksTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_peer_links_total",
		Help: "Number of peer broker links held by this broker.",
	})

	// SyncRecordsSentTotal counts sync records this broker emitted to
	// peers, labeled by syncAction.
	SyncRecordsSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_sync_records_sent_total",
		Help: "Sync records emitted to peer brokers, by syncAction.",
	}, []string{"sync_action"})

	// SyncRecordsAppliedTotal counts sync records this broker applied
	// locally after receiving them from a peer, labeled by syncAction.
	SyncRecordsAppliedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_sync_records_applied_total",
		Help: "Sync records applied from peer brokers, by syncAction.",
	}, []string{"sync_action"})

	// RequestsTotal counts client requests handled, labeled by command and
	// result ("success"/"failed").
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_requests_total",
		Help: "Client requests handled, by command and result.",
	}, []string{"command", "result"})

	// BroadcastsPushedTotal counts broadcast push frames sent to local
	// subscribers.
	BroadcastsPushedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_broadcasts_pushed_total",
		Help: "Broadcast frames pushed to locally connected subscribers.",
	})

	// DeleteNotifiesPushedTotal counts deleteNotify push frames sent to
	// local subscribers.
	DeleteNotifiesPushedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_delete_notifies_pushed_total",
		Help: "deleteNotify frames pushed to locally connected subscribers.",
	})

	// RegisteredBrokersTotal is the current size of the directory service's
	// broker registry.
	RegisteredBrokersTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_registered_brokers_total",
		Help: "Number of broker entries held by the directory service.",
	})
)

func init() {
	prometheus.MustRegister(
		TopicsTotal,
		SubscriptionsTotal,
		LocalSubscribersTotal,
		LocalPublishersTotal,
		PeerLinksTotal,
		SyncRecordsSentTotal,
		SyncRecordsAppliedTotal,
		RequestsTotal,
		BroadcastsPushedTotal,
		DeleteNotifiesPushedTotal,
		RegisteredBrokersTotal,
	)
}

// Handler returns the HTTP handler that serves /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
