package event

import (
	"context"
	"sync"

	agentcoreerrors "github.com/kalyank1144/agentcore/errors"
	"github.com/kalyank1144/agentcore/internal/idgen"
)

// Subscriber receives events published to the Bus. Subscribers that
// panic are recovered and reported to the OnSubscriberError hook, if
// one is installed; the bus still drains the remaining
// subscribers (spec §4.1: "if a subscriber throws, the error is logged
// and remaining subscribers still run").
type Subscriber func(Event)

// Handle is returned by Subscribe and removes the subscriber when
// invoked.
type Handle func()

// Bus is the persist-then-fanout distribution point described in spec
// §2/§4.1. Publish always appends to the Store before notifying any
// subscriber; if the append fails, the event never reaches a subscriber.
//
// The bus is serial by design (spec §5): Publish completes its append and
// synchronously drains subscribers before returning.
type Bus struct {
	store       Store
	ids         idgen.Generator
	mu          sync.Mutex
	subscribers map[int]Subscriber
	order       []int // subscriber ids in registration order, for Publish's fan-out
	nextSubID   int
	onSubError  func(sub Subscriber, ev Event, r any)
}

// NewBus constructs a Bus backed by store, using ids to mint event
// identifiers and timestamps.
func NewBus(store Store, ids idgen.Generator) *Bus {
	return &Bus{
		store:       store,
		ids:         ids,
		subscribers: make(map[int]Subscriber),
	}
}

// OnSubscriberError installs a hook invoked whenever a subscriber panics.
// Defaults to a no-op; callers typically wire this to their logger.
func (b *Bus) OnSubscriberError(fn func(sub Subscriber, ev Event, r any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onSubError = fn
}

// Subscribe registers fn to receive every future published event. The
// returned Handle removes fn when called; calling it more than once is a
// no-op.
func (b *Bus) Subscribe(fn Subscriber) Handle {
	b.mu.Lock()
	id := b.nextSubID
	b.nextSubID++
	b.subscribers[id] = fn
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			for i, oid := range b.order {
				if oid == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
			b.mu.Unlock()
		})
	}
}

// Publish assigns EventID/Timestamp if unset, appends e to the store, and
// — only once the append has durably succeeded — synchronously notifies
// every current subscriber in registration order.
//
// Publish fails with errors.KindPersistenceError if the append fails; in
// that case no subscriber observes the event (spec §4.1: "the bus never
// fans out a non-persisted event").
func (b *Bus) Publish(ctx context.Context, e Event) (Event, error) {
	if e.EventID == "" {
		e.EventID = b.ids.NewEventID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = b.ids.Now()
	}

	if err := b.store.Append(ctx, e); err != nil {
		return Event{}, agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "append event", err)
	}

	b.mu.Lock()
	subs := make([]Subscriber, 0, len(b.subscribers))
	onErr := b.onSubError
	for _, id := range b.order {
		if fn, ok := b.subscribers[id]; ok {
			subs = append(subs, fn)
		}
	}
	b.mu.Unlock()

	for _, fn := range subs {
		b.notifyOne(fn, e, onErr)
	}

	return e, nil
}

func (b *Bus) notifyOne(fn Subscriber, e Event, onErr func(Subscriber, Event, any)) {
	defer func() {
		if r := recover(); r != nil && onErr != nil {
			onErr(fn, e, r)
		}
	}()
	fn(e)
}

// EmitPrimitive maps a broader "primitive" vocabulary onto the canonical
// stored Type, embedding the original primitive under payload._primitive
// for replay normalization (spec §4.1). Unknown primitives fail with
// KindValidationError rather than silently minting a new stored type.
func (b *Bus) EmitPrimitive(ctx context.Context, prim Primitive, taskID string, mode Mode, stage Stage, payload map[string]any) (Event, error) {
	canonical, ok := primitiveToType[prim]
	if !ok {
		return Event{}, agentcoreerrors.New(agentcoreerrors.KindValidationError, "unknown primitive: "+string(prim))
	}

	merged := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		merged[k] = v
	}
	merged["_primitive"] = string(prim)

	return b.Publish(ctx, Event{
		TaskID:  taskID,
		Type:    canonical,
		Mode:    mode,
		Stage:   stage,
		Payload: merged,
	})
}
