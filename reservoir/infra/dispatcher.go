package infra

import (
	"runtime/debug"
	"sync"

	"fuel-reservoir/reservoir/domain"

	"github.com/sirupsen/logrus"
)

// Dispatcher entrega eventos aos sinks numa goroutine própria, na ordem de publicação.
//
// Publish só enfileira (fila sem limite) e nunca bloqueia, então pode ser chamado de
// dentro da região exclusiva do reservatório. Um sink lento atrasa os outros sinks,
// nunca o reservatório.
type Dispatcher struct {
	mu     sync.Mutex
	queue  []domain.Event
	sinks  []sinkEntry
	nextID uint64
	closed bool

	signal chan struct{}
	done   chan struct{}
	log    logrus.FieldLogger
}

type sinkEntry struct {
	id   uint64
	sink domain.EventSink
}

type DispatcherOption func(*Dispatcher)

func WithDispatcherLogger(l logrus.FieldLogger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.loop()
	return d
}

// Publish implementa domain.Publisher. Eventos publicados após Close são descartados.
func (d *Dispatcher) Publish(ev domain.Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, ev)
	d.mu.Unlock()

	d.notify()
}

// Subscribe registra um sink e retorna a função que o remove.
func (d *Dispatcher) Subscribe(s domain.EventSink) (unsubscribe func()) {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.sinks = append(d.sinks, sinkEntry{id: id, sink: s})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			for i, e := range d.sinks {
				if e.id == id {
					d.sinks = append(d.sinks[:i:i], d.sinks[i+1:]...)
					return
				}
			}
		})
	}
}

// Close para de aceitar eventos, entrega o que já estava na fila e espera a goroutine sair.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.notify()
	<-d.done
}

func (d *Dispatcher) notify() {
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for range d.signal {
		for {
			d.mu.Lock()
			if len(d.queue) == 0 {
				closed := d.closed
				d.mu.Unlock()
				if closed {
					return
				}
				break
			}
			batch := d.queue
			d.queue = nil
			sinks := append([]sinkEntry(nil), d.sinks...)
			d.mu.Unlock()

			for _, ev := range batch {
				for _, s := range sinks {
					d.deliver(s.sink, ev)
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(s domain.EventSink, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("event", ev.Kind.String()).Errorf("event sink panic: %v\n%s", r, debug.Stack())
		}
	}()
	s.Handle(ev)
}
