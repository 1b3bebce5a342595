// Package domain define contratos e tipos de domínio do reservatório de combustível
// e do ciclo de vida dos carros que o consomem.
//
// Este pacote não depende de net/http, Redis ou Prometheus.
// A intenção é permitir testes de unidade puros e desacoplar as regras de coordenação
// (nível, espera, reabastecimento) dos detalhes de infraestrutura e apresentação.
package domain
