// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - Tank: o reservatório (mutex + condição de espera por broadcast)
//   - SlotPool: semáforo simples para limitar carros/streams simultâneos
//   - BucketStore: token bucket por chave usando golang.org/x/time/rate
//   - Dispatcher: entrega assíncrona e ordenada de eventos para sinks
//   - MemoryStatsStore / RedisStatsStore: estatísticas do ciclo de vida
//   - LogSink / StatsSink / MetricsSink: sinks de log (logrus), estatística e Prometheus
package infra
