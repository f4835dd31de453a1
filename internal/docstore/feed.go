package docstore

import (
	"context"
	"sync"
	"time"
)

// Операции в ленте изменений.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Event — событие изменения документа.
type Event struct {
	Op         string    `json:"op"`
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	At         time.Time `json:"at"`
}

// Broker рассылает события подписчикам внутри процесса.
// Медленный подписчик теряет события, публикация не блокируется.
type Broker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]subscription
}

type subscription struct {
	collection string
	ch         chan Event
}

// NewBroker создаёт брокер событий.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]subscription)}
}

// Subscribe подписывает на события коллекции (пустая строка — на все).
// Возвращает канал и функцию отписки, которая закрывает канал.
func (b *Broker) Subscribe(collection string, buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 16
	}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.subs[id] = subscription{collection: collection, ch: ch}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish рассылает событие.
func (b *Broker) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.collection != "" && s.collection != ev.Collection {
			continue
		}
		select {
		case s.ch <- ev:
		default:
		}
	}
}

// Observed публикует событие после каждой успешной записи.
type Observed struct {
	Store
	broker *Broker
	now    func() time.Time
}

// NewObserved оборачивает хранилище публикацией изменений в broker.
func NewObserved(next Store, broker *Broker) *Observed {
	return &Observed{Store: next, broker: broker, now: time.Now}
}

func (o *Observed) publish(op, collection, id string) {
	o.broker.Publish(Event{Op: op, Collection: collection, ID: id, At: o.now().UTC()})
}

func (o *Observed) Create(ctx context.Context, collection, id string, fields map[string]any) (string, error) {
	newID, err := o.Store.Create(ctx, collection, id, fields)
	if err == nil {
		o.publish(OpCreate, collection, newID)
	}
	return newID, err
}

func (o *Observed) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	err := o.Store.Update(ctx, collection, id, patch)
	if err == nil {
		o.publish(OpUpdate, collection, id)
	}
	return err
}

func (o *Observed) Delete(ctx context.Context, collection, id string) error {
	err := o.Store.Delete(ctx, collection, id)
	if err == nil {
		o.publish(OpDelete, collection, id)
	}
	return err
}
