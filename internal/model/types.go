package model

// -----------------------------------------------------------------------------
// Commands
// -----------------------------------------------------------------------------

// Action is a dashboard command value carried in the "acao" field.
type Action string

const (
	ActionStartRoute  Action = "iniciar_rota"
	ActionFinishRoute Action = "finalizar_rota"
)

// Command is sent by dashboards and forwarded to the device unchanged in shape.
type Command struct {
	Action Action `json:"acao"`
}

// -----------------------------------------------------------------------------
// State broadcast
// -----------------------------------------------------------------------------

// DeviceStatus holds the connected flag of each wearable.
type DeviceStatus struct {
	Bracelete bool `json:"bracelete"`
	Oculos    bool `json:"oculos"`
}

// RouteTelemetry is the latest reading of the route in progress.
// Temperature and Humidity stay nil until the device reports them.
type RouteTelemetry struct {
	Distance    float64  `json:"distancia"`  // km
	Speed       float64  `json:"velocidade"` // km/h
	Location    string   `json:"localizacao"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	Temperature *float64 `json:"temperatura,omitempty"` // °C
	Humidity    *float64 `json:"umidade,omitempty"`     // %
}

// CurrentRoute is the "rotaAtual" object: progress flag plus telemetry.
type CurrentRoute struct {
	InProgress bool `json:"emAndamento"`
	RouteTelemetry
}

// RouteHistoryEntry is one row of the read-only route list.
type RouteHistoryEntry struct {
	Title   string `json:"titulo"`
	Details string `json:"detalhes"`
}

// Snapshot is the full state document broadcast to dashboards.
type Snapshot struct {
	Devices DeviceStatus        `json:"dispositivos"`
	Route   CurrentRoute        `json:"rotaAtual"`
	History []RouteHistoryEntry `json:"listaRotas"`
}

// DefaultLocation is shown until the first GPS fix arrives.
const DefaultLocation = "Aguardando GPS..."

// DefaultRouteTelemetry returns the telemetry a fresh server starts with.
func DefaultRouteTelemetry() RouteTelemetry {
	return RouteTelemetry{Location: DefaultLocation}
}

// DemoRouteHistory returns the built-in route list used when no database
// is configured.
func DemoRouteHistory() []RouteHistoryEntry {
	return []RouteHistoryEntry{
		{Title: "Rota da Manhã", Details: "12.5 KM • 45 min • Hoje 08:15"},
		{Title: "Passeio no Parque", Details: "8.2 KM • 28 min • Ontem 14:20"},
		{Title: "Treino Noturno", Details: "15.8 KM • 52 min • 2 dias atrás"},
		{Title: "Caminhada Leve", Details: "6.7 KM • 22 min • 3 dias atrás"},
	}
}
