// Package model defines the wire types exchanged between the relay, the
// tracking device and the dashboards.
//
// JSON field names are Portuguese because they are fixed by the deployed
// firmware and dashboard script:
//   - dispositivos / rotaAtual / listaRotas: state broadcast
//   - acao: commands (iniciar_rota, finalizar_rota)
//   - bracelete, oculos, distancia, ...: telemetry keys
//
// Units: distance in km, speed in km/h, coordinates in decimal degrees,
// temperature in °C, humidity in %.
package model
