// Package reservoir é a borda HTTP (net/http) do reservatório de combustível: o lugar
// onde a apresentação (painel, botões, campo de texto) conversa com o núcleo.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos (reservatório, carro, eventos, erros)
//   - application: casos de uso (scheduler de carros, gate dos gatilhos, parse da quantidade)
//   - infra: implementações concretas (tank, semáforo, token bucket, dispatcher, sinks)
//   - reservoir (este pacote): handlers HTTP + limite por gatilho/cliente + tradução para status/headers
//
// Rotas:
//
//	POST /cars      adiciona um carro (202, 429 throttled, 503 saturado/fechado)
//	POST /recharge  reabastece com a quantidade no corpo (texto) ou no form "amount" (400 se inválida, 429 throttled)
//	GET  /level     nível atual em JSON e no header X-Fuel-Level
//	GET  /events    stream (Server-Sent Events) de fuel_level_changed / agent_state_changed /
//	                trigger_throttled (503 se não houver vaga)
//	GET  /metrics   métricas Prometheus, se configurado
//
// Variáveis de ambiente do binário reservoird (cmd/reservoird) controlam o comportamento,
// como FUEL_CAPACITY, MAX_CARS, CARS_RPS, RECHARGE_RPS e MAX_EVENT_STREAMS.
package reservoir
