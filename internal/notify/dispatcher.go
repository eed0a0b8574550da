package notify

import (
	"context"
	"sync"
	"time"
)

// AllUsers subscribes to the notifications of every user.
const AllUsers uint = 0

// Message is a dispatched notification.
type Message struct {
	UserID    uint      `json:"user_id"`
	Type      Type      `json:"type"`
	BillIDs   []uint    `json:"bill_ids"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Dispatcher delivers messages to in-process subscribers.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[uint]map[int64]*subscriber
	nextID      int64
	bufferSize  int
}

type subscriber struct {
	id     int64
	stream chan Message
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[uint]map[int64]*subscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream for userID until ctx ends or the cleanup runs.
func (d *Dispatcher) Subscribe(ctx context.Context, userID uint) (<-chan Message, func()) {
	sub := &subscriber{
		id:     d.nextSequence(),
		stream: make(chan Message, d.bufferSize),
	}
	d.register(userID, sub)
	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unregister(userID, sub.id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return sub.stream, cleanup
}

// Publish fans a message out without blocking; full subscriber buffers drop it.
func (d *Dispatcher) Publish(message Message) {
	if message.UserID == AllUsers {
		return
	}
	d.mu.RLock()
	targets := make([]*subscriber, 0, len(d.subscribers[message.UserID])+len(d.subscribers[AllUsers]))
	for _, sub := range d.subscribers[message.UserID] {
		targets = append(targets, sub)
	}
	for _, sub := range d.subscribers[AllUsers] {
		targets = append(targets, sub)
	}
	d.mu.RUnlock()
	for _, sub := range targets {
		select {
		case sub.stream <- message:
		default:
		}
	}
}

func (d *Dispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Dispatcher) register(userID uint, sub *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[userID]; !ok {
		d.subscribers[userID] = make(map[int64]*subscriber)
	}
	d.subscribers[userID][sub.id] = sub
}

func (d *Dispatcher) unregister(userID uint, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[userID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, userID)
		}
	}
	d.mu.Unlock()
}
