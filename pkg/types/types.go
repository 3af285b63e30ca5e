// Package types holds the domain and wire-frame structures shared by the
// broker, directory service, and pub/sub clients.
package types

// Role identifies what kind of session a connection announces.
type Role string

const (
	RoleSubscriber Role = "subscriber"
	RolePublisher  Role = "publisher"
	RoleBroker     Role = "broker"
)

// MessageType tags a broker->client frame so the client can demultiplex
// synchronous responses from asynchronous pushes.
type MessageType string

const (
	MessageResponse     MessageType = "response"
	MessageBroadcast    MessageType = "broadcast"
	MessageDeleteNotify MessageType = "deleteNotify"
	MessageCurrent      MessageType = "current"
	MessageList         MessageType = "list"
)

// SyncAction identifies the mutation a sync record replicates to a peer.
type SyncAction string

const (
	SyncCreate                      SyncAction = "create"
	SyncDelete                      SyncAction = "delete"
	SyncPublish                     SyncAction = "publish"
	SyncSubscribe                   SyncAction = "subscribe"
	SyncUnsubscribe                 SyncAction = "unsubscribe"
	SyncDeleteAllTopicsByPublisher  SyncAction = "deleteAllTopicsByPublisher"
	SyncDeleteAllTopicsBySubscriber SyncAction = "deleteAllTopicsBySubscriber"
)

// Session state machine values.
type SessionState string

const (
	SessionAnnouncing   SessionState = "announcing"
	SessionOperating    SessionState = "operating"
	SessionDisconnected SessionState = "disconnected"
)

// Wire-level error details. These are the exact human strings that must
// appear in a failed response's "detail" field.
const (
	ErrAlreadyExists    = "topic id already exists"
	ErrNotOwner         = "you don't have this topic id"
	ErrNoSuchTopic      = "topic id does not exist"
	ErrAlreadySubscribed = "already subscribed to this topic id"
	ErrNotSubscribed    = "not subscribed to this topic id"
	ErrNoTopicsOwned    = "you have not created any topic"
	ErrNoSubscriptions  = "you have no current subscriptions"
	ErrEmptyListing     = "no topics available"
	ErrInvalidCommand   = "invalid command"
)

// Topic is one entry of the broker's topic table.
type Topic struct {
	ID    string `json:"topic id"`
	Title string `json:"title"`
	Owner string `json:"publisher"`
}

// TopicListEntry is the shape returned by list/showCurrentSubscription.
type TopicListEntry struct {
	ID        string `json:"topic id"`
	Title     string `json:"title"`
	Publisher string `json:"publisher"`
}

// SubscriberCountEntry is one row of countSubscriber's response.
type SubscriberCountEntry struct {
	ID        string `json:"topic id"`
	Title     string `json:"title"`
	Publisher string `json:"publisher"`
	Count     string `json:"count"`
}

// BrokerAddr identifies a broker endpoint for directory/bootstrap purposes.
type BrokerAddr struct {
	IP   string `json:"brokerIp"`
	Port string `json:"brokerPort"`
}

// String renders the canonical "ip:port" form used as a peer-link dedup key.
func (b BrokerAddr) String() string {
	return b.IP + ":" + b.Port
}

// AnnounceFrame is the first frame on every new connection.
type AnnounceFrame struct {
	UserType   Role   `json:"user type"`
	UserName   string `json:"user name"`
	IPAddress  string `json:"ip address,omitempty"`
	PortNumber string `json:"port number,omitempty"`
}

// RequestFrame is a client->broker command frame. Fields not relevant to a
// given command are left zero.
type RequestFrame struct {
	Command    string     `json:"command"`
	TopicID    string     `json:"topic id,omitempty"`
	TopicName  string     `json:"topic name,omitempty"`
	Message    string     `json:"message,omitempty"`
	SyncAction SyncAction `json:"syncAction,omitempty"`

	// Sync-only fields.
	Title     string   `json:"title,omitempty"`
	Publisher string   `json:"publisher,omitempty"`
	Subscriber string  `json:"subscriber,omitempty"`
	TopicIDs  []string `json:"topic ids,omitempty"`
}

// ResponseFrame is a broker->client reply to a RequestFrame.
type ResponseFrame struct {
	Result      string      `json:"result"`
	Detail      interface{} `json:"detail"`
	MessageType MessageType `json:"message type,omitempty"`
}

// BroadcastFrame is an asynchronous push delivering a published message.
type BroadcastFrame struct {
	MessageType MessageType `json:"message type"`
	Publisher   string      `json:"publisher"`
	Title       string      `json:"title"`
	TopicID     string      `json:"topic id"`
	Message     string      `json:"message"`
}

// DeleteNotifyFrame is an asynchronous push informing a subscriber that one
// or more of its topics were deleted.
type DeleteNotifyFrame struct {
	MessageType   MessageType      `json:"message type"`
	DeletedTopics []TopicListEntry `json:"deleted topic"`
}

// DirectoryRegisterRequest is sent by a broker announcing itself.
type DirectoryRegisterRequest struct {
	UserType Role   `json:"user type"`
	IP       string `json:"brokerIp"`
	Port     string `json:"brokerPort"`
}

// DirectoryRegisterResponse carries the full broker list back to the
// newly-registered broker.
type DirectoryRegisterResponse struct {
	UserType Role         `json:"user type"`
	Brokers  []BrokerAddr `json:"brokers"`
}

// DirectoryQueryRequest is sent by a publisher or subscriber looking for a
// broker to connect to.
type DirectoryQueryRequest struct {
	UserType Role `json:"user type"`
}

// DirectoryQueryResponse carries the current broker list.
type DirectoryQueryResponse struct {
	Brokers []BrokerAddr `json:"brokers"`
}
