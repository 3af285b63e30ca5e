package broker

import (
	"net"
	"testing"
	"time"

	"github.com/cuemby/relay/pkg/types"
	"github.com/cuemby/relay/pkg/wire"
)

func newTestBroker() *Broker {
	return New(types.BrokerAddr{IP: "127.0.0.1", Port: "6666"})
}

// pipeSubscriber registers a subscriber backed by a loopback TCP connection
// and returns a decoder for the far end so the test can read pushed frames.
// The socket's kernel buffer lets the broker finish a push before the test
// reads it.
func pipeSubscriber(t *testing.T, b *Broker, name string) *wire.Decoder {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	clientSide, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	serverSide, err := ln.Accept()
	if err != nil {
		clientSide.Close()
		t.Fatalf("accept: %v", err)
	}
	t.Cleanup(func() { serverSide.Close(); clientSide.Close() })
	b.RegisterSubscriber(name, serverSide)
	return wire.NewDecoder(clientSide)
}

func readFrame(t *testing.T, dec *wire.Decoder) map[string]interface{} {
	t.Helper()
	done := make(chan map[string]interface{}, 1)
	errCh := make(chan error, 1)
	go func() {
		var frame map[string]interface{}
		if err := dec.ReadFrame(&frame); err != nil {
			errCh <- err
			return
		}
		done <- frame
	}()
	select {
	case frame := <-done:
		return frame
	case err := <-errCh:
		t.Fatalf("reading frame: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return nil
}

func TestCreateTopic(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(b *Broker)
		topicID    string
		title      string
		publisher  string
		wantResult string
		wantDetail string
	}{
		{
			name:       "new topic succeeds",
			topicID:    "10",
			title:      "weather",
			publisher:  "pub1",
			wantResult: "success",
		},
		{
			name: "duplicate topic id fails",
			setup: func(b *Broker) {
				b.CreateTopic("10", "weather", "pub1")
			},
			topicID:    "10",
			title:      "other",
			publisher:  "pub2",
			wantResult: "failed",
			wantDetail: types.ErrAlreadyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBroker()
			if tt.setup != nil {
				tt.setup(b)
			}
			resp, _ := b.CreateTopic(tt.topicID, tt.title, tt.publisher)
			if resp.Result != tt.wantResult {
				t.Errorf("result = %q, want %q", resp.Result, tt.wantResult)
			}
			if tt.wantDetail != "" && resp.Detail != tt.wantDetail {
				t.Errorf("detail = %v, want %q", resp.Detail, tt.wantDetail)
			}
		})
	}
}

func TestPublishOwnershipGuard(t *testing.T) {
	b := newTestBroker()
	b.CreateTopic("30", "news", "pub1")

	resp, _ := b.PublishMessage("30", "hello", "pub2")
	if resp.Result != "failed" || resp.Detail != types.ErrNotOwner {
		t.Fatalf("expected not-owner failure, got %+v", resp)
	}

	resp, _ = b.PublishMessage("30", "hello", "pub1")
	if resp.Result != "success" {
		t.Fatalf("expected success from owner, got %+v", resp)
	}
}

func TestSubscribeRequiresExistingTopic(t *testing.T) {
	b := newTestBroker()

	resp, _ := b.Subscribe("10", "sub1")
	if resp.Result != "failed" || resp.Detail != types.ErrNoSuchTopic {
		t.Fatalf("expected no-such-topic, got %+v", resp)
	}

	b.CreateTopic("10", "weather", "pub1")
	resp, _ = b.Subscribe("10", "sub1")
	if resp.Result != "success" {
		t.Fatalf("expected success, got %+v", resp)
	}

	resp, _ = b.Subscribe("10", "sub1")
	if resp.Result != "failed" || resp.Detail != types.ErrAlreadySubscribed {
		t.Fatalf("expected already-subscribed, got %+v", resp)
	}
}

func TestSubscribeThenUnsubscribeRoundTrip(t *testing.T) {
	b := newTestBroker()
	b.CreateTopic("10", "weather", "pub1")
	b.Subscribe("10", "sub1")

	resp, _ := b.Unsubscribe("10", "sub1")
	if resp.Result != "success" {
		t.Fatalf("expected success, got %+v", resp)
	}

	resp = b.ShowCurrentSubscription("sub1")
	if resp.Result != "failed" || resp.Detail != types.ErrNoSubscriptions {
		t.Fatalf("expected empty subscription set after round trip, got %+v", resp)
	}
}

// TestBasicFanOut covers a single broker, one publisher, one subscriber.
func TestBasicFanOut(t *testing.T) {
	b := newTestBroker()
	dec := pipeSubscriber(t, b, "sub1")

	resp, _ := b.Subscribe("10", "sub1")
	if resp.Result != "failed" || resp.Detail != types.ErrNoSuchTopic {
		t.Fatalf("expected no-such-topic before create, got %+v", resp)
	}

	resp, _ = b.CreateTopic("10", "weather", "pub1")
	if resp.Result != "success" {
		t.Fatalf("create failed: %+v", resp)
	}

	resp, _ = b.Subscribe("10", "sub1")
	if resp.Result != "success" {
		t.Fatalf("subscribe failed: %+v", resp)
	}

	resp, _ = b.PublishMessage("10", "hello", "pub1")
	if resp.Result != "success" {
		t.Fatalf("publish failed: %+v", resp)
	}

	frame := readFrame(t, dec)
	if frame["message type"] != "broadcast" {
		t.Fatalf("expected broadcast frame, got %+v", frame)
	}
	if frame["topic id"] != "10" || frame["message"] != "hello" || frame["publisher"] != "pub1" {
		t.Fatalf("unexpected broadcast contents: %+v", frame)
	}
}

// TestDeleteTopicNotifiesSubscribers checks that deleting a topic notifies
// every subscriber that held it and strips it from their subscription set.
func TestDeleteTopicNotifiesSubscribers(t *testing.T) {
	b := newTestBroker()
	dec := pipeSubscriber(t, b, "sub1")

	b.CreateTopic("10", "weather", "pub1")
	b.Subscribe("10", "sub1")

	resp, _ := b.DeleteTopic("10", "pub1")
	if resp.Result != "success" {
		t.Fatalf("delete failed: %+v", resp)
	}

	frame := readFrame(t, dec)
	if frame["message type"] != "deleteNotify" {
		t.Fatalf("expected deleteNotify, got %+v", frame)
	}

	resp = b.ShowCurrentSubscription("sub1")
	if resp.Result != "failed" {
		t.Fatalf("subscription should have been stripped, got %+v", resp)
	}
}

// TestCreateThenDeleteRoundTrip checks that a topic leaves no trace once
// its creator deletes it.
func TestCreateThenDeleteRoundTrip(t *testing.T) {
	b := newTestBroker()
	b.CreateTopic("10", "weather", "pub1")
	resp, _ := b.DeleteTopic("10", "pub1")
	if resp.Result != "success" {
		t.Fatalf("delete failed: %+v", resp)
	}

	list := b.ListTopics()
	if list.Result != "failed" || list.Detail != types.ErrEmptyListing {
		t.Fatalf("expected empty listing after round trip, got %+v", list)
	}
}

// TestOwnerDisconnectCascade checks that a publisher's disconnect deletes
// every topic it owned in one batch, notifying affected subscribers once.
func TestOwnerDisconnectCascade(t *testing.T) {
	b := newTestBroker()
	dec := pipeSubscriber(t, b, "sub1")

	b.CreateTopic("20", "news", "pub1")
	b.CreateTopic("21", "sports", "pub1")
	b.Subscribe("20", "sub1")
	b.Subscribe("21", "sub1")

	rec := b.OnPublisherDisconnect("pub1")
	if rec == nil {
		t.Fatal("expected a sync record for cascade delete")
	}
	if len(rec.TopicIDs) != 2 {
		t.Fatalf("expected both topics in cascade record, got %+v", rec.TopicIDs)
	}

	frame := readFrame(t, dec)
	if frame["message type"] != "deleteNotify" {
		t.Fatalf("expected a single deleteNotify, got %+v", frame)
	}
	deleted, ok := frame["deleted topic"].([]interface{})
	if !ok || len(deleted) != 2 {
		t.Fatalf("expected deleteNotify listing both topics, got %+v", frame)
	}

	list := b.ListTopics()
	if list.Result != "failed" {
		t.Fatalf("expected empty topic table after owner disconnect, got %+v", list)
	}
}

func TestCountSubscribersNoTopicsOwned(t *testing.T) {
	b := newTestBroker()
	resp := b.CountSubscribers("pub1")
	if resp.Result != "failed" || resp.Detail != types.ErrNoTopicsOwned {
		t.Fatalf("expected no-topics-owned, got %+v", resp)
	}
}

func TestCountSubscribersCounts(t *testing.T) {
	b := newTestBroker()
	pipeSubscriber(t, b, "sub1")
	pipeSubscriber(t, b, "sub2")

	b.CreateTopic("10", "weather", "pub1")
	b.Subscribe("10", "sub1")
	b.Subscribe("10", "sub2")

	resp := b.CountSubscribers("pub1")
	if resp.Result != "success" {
		t.Fatalf("count failed: %+v", resp)
	}
	entries, ok := resp.Detail.([]types.SubscriberCountEntry)
	if !ok || len(entries) != 1 || entries[0].Count != "2" {
		t.Fatalf("unexpected count entries: %+v", resp.Detail)
	}
}

// TestApplySyncCreateAndPublish exercises applySync for a peer-originated
// create, subscribe, and publish, verifying the broadcast reaches the local
// subscriber and that applying sync records creates no peer links.
func TestApplySyncCreateAndPublish(t *testing.T) {
	b := newTestBroker()
	dec := pipeSubscriber(t, b, "sub1")

	b.ApplySync(types.RequestFrame{
		Command: "sync", SyncAction: types.SyncCreate,
		TopicID: "40", Title: "remote", Publisher: "pub-remote",
	})
	b.ApplySync(types.RequestFrame{
		Command: "sync", SyncAction: types.SyncSubscribe,
		TopicID: "40", Subscriber: "sub1",
	})
	b.ApplySync(types.RequestFrame{
		Command: "sync", SyncAction: types.SyncPublish,
		TopicID: "40", Message: "hi", Publisher: "pub-remote",
	})

	frame := readFrame(t, dec)
	if frame["message type"] != "broadcast" || frame["topic id"] != "40" {
		t.Fatalf("expected applied broadcast, got %+v", frame)
	}

	if b.PeerCount() != 0 {
		t.Fatalf("applySync must not create peer links")
	}
}

func TestPeerDedup(t *testing.T) {
	b := newTestBroker()
	addr := types.BrokerAddr{IP: "10.0.0.2", Port: "7777"}

	s1, c1 := net.Pipe()
	defer s1.Close()
	defer c1.Close()
	_, added := b.AddPeer(addr, s1)
	if !added {
		t.Fatal("expected first AddPeer to succeed")
	}

	s2, c2 := net.Pipe()
	defer s2.Close()
	defer c2.Close()
	_, added = b.AddPeer(addr, s2)
	if added {
		t.Fatal("expected duplicate AddPeer to be rejected")
	}

	if got := b.PeerCount(); got != 1 {
		t.Fatalf("expected exactly one peer link, got %d", got)
	}
}
