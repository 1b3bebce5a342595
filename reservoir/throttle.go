package reservoir

import (
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"fuel-reservoir/reservoir/application"
	"fuel-reservoir/reservoir/domain"

	"github.com/pkg/errors"
)

// KeyFunc identifica o cliente que disparou um gatilho.
type KeyFunc func(r *http.Request) string

// TriggerOptions configura o limite por cliente de POST /cars e POST /recharge.
// Gate nil deixa os gatilhos passarem sem limite.
type TriggerOptions struct {
	Gate               *application.TriggerGate
	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool
}

// DefaultKeyFunc usa o header do painel, se houver; senão o primeiro IP de
// X-Forwarded-For (quando confiável); senão o IP da conexão.
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if station := strings.TrimSpace(r.Header.Get(keyHeader)); station != "" {
				return station
			}
		}
		if trustXFF {
			first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		addr := strings.TrimSpace(r.RemoteAddr)
		if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
			return host
		}
		if addr != "" {
			return addr
		}
		return "unknown"
	}
}

// guard põe o gatilho tr atrás do TriggerGate. Um cliente contido recebe 429 com
// Retry-After; a recusa em si já foi publicada pelo gate como evento.
func (h *handler) guard(tr domain.Trigger, next http.HandlerFunc) http.Handler {
	gate := h.opts.Triggers.Gate
	if gate == nil {
		return next
	}
	keyFn := h.opts.Triggers.KeyFn
	if keyFn == nil {
		keyFn = DefaultKeyFunc(h.opts.Triggers.KeyHeader, h.opts.Triggers.TrustXForwardedFor)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dec := gate.Admit(tr, keyFn(r))
		if !dec.Allowed {
			w.Header().Set("Retry-After", formatInt(retrySeconds(dec.RetryAfter)))
			writeError(w, http.StatusTooManyRequests, errors.Wrapf(domain.ErrThrottled, "%s", tr))
			return
		}
		next(w, r)
	})
}

// retrySeconds arredonda para cima: Retry-After só aceita segundos inteiros.
func retrySeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}
