package bcilog

// Contain the StatusPublisher object, which publishes JSON-encoded messages
// giving the latest acquisition state.

import (
	"encoding/json"
	"fmt"
	"sync"

	zmq "github.com/pebbe/zmq4"
)

// ClientUpdate carries the messages to be published on the status port.
type ClientUpdate struct {
	Tag   string
	State any
}

// StatusPublisher forwards updates to a ZMQ PUB socket. Publish never blocks
// the caller: when the queue is full the update is dropped.
type StatusPublisher struct {
	updates   chan ClientUpdate
	done      chan struct{}
	closeOnce sync.Once
	dropped   int
	dropLock  sync.Mutex
}

// Tags used on the status port.
const (
	TagStats   = "STATS"
	TagSession = "SESSION"
)

// StartStatusPublisher binds a PUB socket on the given TCP port and starts
// publishing updates sent to it.
func StartStatusPublisher(port int) (*StatusPublisher, error) {
	sp := &StatusPublisher{
		updates: make(chan ClientUpdate, 64),
		done:    make(chan struct{}),
	}
	hostname := fmt.Sprintf("tcp://*:%d", port)
	bound := make(chan error)
	go sp.run(hostname, bound)
	if err := <-bound; err != nil {
		return nil, err
	}
	return sp, nil
}

// run owns the socket for its whole life, as ZMQ sockets must stay on one goroutine.
func (sp *StatusPublisher) run(hostname string, bound chan<- error) {
	defer close(sp.done)
	pubSocket, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		bound <- err
		return
	}
	defer pubSocket.Close()
	pubSocket.SetLinger(0)
	if err = pubSocket.Bind(hostname); err != nil {
		bound <- fmt.Errorf("could not bind status publisher to %s: %w", hostname, err)
		return
	}
	bound <- nil

	for update := range sp.updates {
		message, err := json.Marshal(update.State)
		if err != nil {
			ProblemLogger.Printf("Could not JSON-encode %s update: %v\n", update.Tag, err)
			continue
		}
		if _, err := pubSocket.SendMessage(update.Tag, message); err != nil {
			ProblemLogger.Printf("Could not publish %s update: %v\n", update.Tag, err)
		}
	}
}

// Publish queues an update for publication.
func (sp *StatusPublisher) Publish(tag string, state any) {
	if sp == nil {
		return
	}
	select {
	case sp.updates <- ClientUpdate{Tag: tag, State: state}:
	default:
		sp.dropLock.Lock()
		sp.dropped++
		sp.dropLock.Unlock()
	}
}

// Dropped returns how many updates were discarded because the queue was full.
func (sp *StatusPublisher) Dropped() int {
	sp.dropLock.Lock()
	defer sp.dropLock.Unlock()
	return sp.dropped
}

// Close publishes whatever is queued and shuts the socket. Publish must not
// be called after Close.
func (sp *StatusPublisher) Close() {
	if sp == nil {
		return
	}
	sp.closeOnce.Do(func() { close(sp.updates) })
	<-sp.done
}
