package reservoir

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fuel-reservoir/reservoir/application"
	"fuel-reservoir/reservoir/domain"
	"fuel-reservoir/reservoir/infra"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const maxAmountBody = 64

// Spawner é o lado do scheduler que a borda usa ("adicionar carro").
type Spawner interface {
	AddAgent(ctx context.Context) (domain.Agent, error)
}

// Subscriber entrega eventos do núcleo para um sink até o unsubscribe.
type Subscriber interface {
	Subscribe(domain.EventSink) (unsubscribe func())
}

type Options struct {
	Spawner   Spawner
	Reservoir domain.Reservoir
	Events    Subscriber

	Triggers TriggerOptions
	Streams  StreamOptions
	// StreamBuffer é quantos eventos um stream lento pode acumular antes de descartar.
	StreamBuffer int
	Metrics      http.Handler

	Log logrus.FieldLogger
}

// StreamOptions limita quantos observadores seguram GET /events ao mesmo tempo.
// Max <= 0 não limita; AcquireTimeout <= 0 espera a vaga enquanto o cliente esperar.
type StreamOptions struct {
	Max            int
	AcquireTimeout time.Duration
}

var errTooManyStreams = errors.New("too many event streams")

type handler struct {
	opts    Options
	log     logrus.FieldLogger
	streams domain.SlotPool
}

type levelView struct {
	Level    float64 `json:"level"`
	Capacity float64 `json:"capacity"`
	Percent  float64 `json:"percent"`
}

type eventView struct {
	Kind    string    `json:"kind"`
	Level   float64   `json:"level"`
	Car     string    `json:"car,omitempty"`
	State   string    `json:"state,omitempty"`
	Demand  float64   `json:"demand,omitempty"`
	Trigger string    `json:"trigger,omitempty"`
	Client  string    `json:"client,omitempty"`
	At      time.Time `json:"at"`
}

type errorView struct {
	Error string `json:"error"`
}

func Handler(opts Options) http.Handler {
	if opts.StreamBuffer <= 0 {
		opts.StreamBuffer = 64
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	h := &handler{opts: opts, log: opts.Log, streams: infra.NewSlotPool(opts.Streams.Max)}

	mux := http.NewServeMux()
	mux.Handle("POST /cars", h.guard(domain.TriggerAddCar, h.addCar))
	mux.Handle("POST /recharge", h.guard(domain.TriggerRecharge, h.recharge))
	mux.HandleFunc("GET /level", h.level)
	if opts.Events != nil {
		mux.HandleFunc("GET /events", h.events)
	}
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}
	return mux
}

func (h *handler) addCar(w http.ResponseWriter, r *http.Request) {
	car, err := h.opts.Spawner.AddAgent(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, car)
	case errors.Is(err, domain.ErrSchedulerSaturated):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, domain.ErrSchedulerClosed):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		h.log.WithError(err).Error("add car failed")
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (h *handler) recharge(w http.ResponseWriter, r *http.Request) {
	text, err := amountText(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	level, err := application.Recharge(h.opts.Reservoir, text)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidAmount) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		h.log.WithError(err).Error("recharge failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeLevel(w, level)
}

func (h *handler) level(w http.ResponseWriter, _ *http.Request) {
	h.writeLevel(w, h.opts.Reservoir.Level())
}

func (h *handler) writeLevel(w http.ResponseWriter, level float64) {
	w.Header().Set("X-Fuel-Level", formatFloat(level))
	writeJSON(w, http.StatusOK, levelView{
		Level:    level,
		Capacity: h.opts.Reservoir.Capacity(),
		Percent:  infra.Percent(level / h.opts.Reservoir.Capacity()),
	})
}

// events escreve um stream SSE. O primeiro evento é o nível atual; depois, tudo o que
// o dispatcher entregar. Se o cliente não acompanha, eventos são descartados
// (o dispatcher nunca espera um stream). Cada stream ocupa uma vaga de opts.Streams.
func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	release, ok := h.acquireStream(r.Context())
	if !ok {
		writeError(w, http.StatusServiceUnavailable, errTooManyStreams)
		return
	}
	defer release()

	ch := make(chan domain.Event, h.opts.StreamBuffer)
	unsubscribe := h.opts.Events.Subscribe(domain.EventSinkFunc(func(ev domain.Event) {
		select {
		case ch <- ev:
		default:
		}
	}))
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	initial := domain.Event{Kind: domain.FuelLevelChanged, Level: h.opts.Reservoir.Level(), At: time.Now()}
	if err := writeEvent(w, initial); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			if err := writeEvent(w, ev); err != nil {
				h.log.WithError(err).Debug("event stream closed")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *handler) acquireStream(ctx context.Context) (func(), bool) {
	if h.opts.Streams.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.Streams.AcquireTimeout)
		defer cancel()
	}
	return h.streams.Acquire(ctx)
}

func writeEvent(w io.Writer, ev domain.Event) error {
	view := eventView{Kind: ev.Kind.String(), Level: ev.Level, At: ev.At}
	switch ev.Kind {
	case domain.AgentStateChanged:
		view.Car = string(ev.Agent)
		view.State = ev.State.String()
		view.Demand = ev.Demand
	case domain.TriggerThrottled:
		view.Trigger = string(ev.Trigger)
		view.Client = ev.Client
	}
	b, err := json.Marshal(view)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, b)
	return err
}

// amountText aceita o texto cru no corpo ou o campo "amount" de um form.
func amountText(r *http.Request) (string, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || r.URL.Query().Has("amount") {
		return r.FormValue("amount"), nil
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, maxAmountBody+1))
	if err != nil {
		return "", errors.Wrap(err, "read recharge body")
	}
	if len(b) > maxAmountBody {
		return "", &domain.AmountError{Input: string(b[:maxAmountBody]) + "...", Reason: "too long"}
	}
	return string(b), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorView{Error: err.Error()})
}
