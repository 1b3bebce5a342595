// Package application contém os casos de uso do reservatório: o scheduler de carros,
// a admissão de gatilhos e a leitura da quantidade digitada para reabastecer.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Scheduler.AddAgent(ctx) cria um carro e roda seu ciclo de vida numa goroutine.
package application
