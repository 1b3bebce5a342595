package domain

import "context"

// Reservoir representa o recurso compartilhado com capacidade limitada.
//
// Invariante: 0 <= Level() <= Capacity() em todo instante observável.
// Todas as mutações passam por Consume e Replenish; Level é uma leitura protegida
// pela mesma exclusão mútua.
type Reservoir interface {
	// Consume bloqueia até que amount caiba no nível atual e então o subtrai.
	// onWait (opcional) é chamado na goroutine de quem chamou, sem o lock,
	// sempre que a checagem encontra amount > nível, antes de suspender.
	// Retorna ErrCancelledWhileWaiting ou ErrTimedOut se o ctx encerrar durante a espera.
	Consume(ctx context.Context, amount float64, onWait func()) error

	// Replenish soma amount ao nível (limitado à capacidade), acorda todos os que
	// esperam em Consume e retorna o novo nível. Nunca bloqueia.
	Replenish(amount float64) (float64, error)

	Level() float64
	Capacity() float64
}
