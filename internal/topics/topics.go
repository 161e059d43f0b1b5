package topics

import (
	"strconv"
	"sync"
)

// Chat topic definitions. RoomMessages carries the message stream for a
// single room; RoomRead carries read receipts for it.
var (
	RoomMessages = NewTopic(
		"chat.room.messages",
		"Message stream for a single chat room",
		"chat.room.{roomID}.messages",
	)

	RoomRead = NewTopic(
		"chat.room.read",
		"Read receipts for a single chat room",
		"chat.room.{roomID}.read",
	)
)

var (
	registry     = make(map[string]Topic)
	registryLock sync.RWMutex
)

func init() {
	Register(RoomMessages)
	Register(RoomRead)
}

// Register registers a new topic. Registering the same name twice is a
// programming error.
func Register(topic Topic) {
	registryLock.Lock()
	defer registryLock.Unlock()

	if _, exists := registry[topic.Name()]; exists {
		panic("topic already registered: " + topic.Name())
	}
	registry[topic.Name()] = topic
}

// Get returns a topic by name.
func Get(name string) (Topic, bool) {
	registryLock.RLock()
	defer registryLock.RUnlock()

	topic, exists := registry[name]
	return topic, exists
}

// List returns all registered topics.
func List() []Topic {
	registryLock.RLock()
	defer registryLock.RUnlock()

	result := make([]Topic, 0, len(registry))
	for _, topic := range registry {
		result = append(result, topic)
	}
	return result
}

// ForRoomMessages formats the message topic for one room.
func ForRoomMessages(roomID int64) string {
	name, err := RoomMessages.Format(map[string]string{
		"roomID": strconv.FormatInt(roomID, 10),
	})
	if err != nil {
		// The pattern has a single placeholder; this cannot fail.
		panic(err)
	}
	return name
}

// ForRoomRead formats the read-receipt topic for one room.
func ForRoomRead(roomID int64) string {
	name, err := RoomRead.Format(map[string]string{
		"roomID": strconv.FormatInt(roomID, 10),
	})
	if err != nil {
		panic(err)
	}
	return name
}
