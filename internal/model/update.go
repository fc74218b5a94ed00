package model

import (
	"encoding/json"
	"math"
	"strconv"
)

// DeviceUpdate is a partial DeviceStatus. Nil fields leave the stored value alone.
type DeviceUpdate struct {
	Bracelete *bool
	Oculos    *bool
}

// Empty reports whether the update carries no field.
func (u DeviceUpdate) Empty() bool {
	return u.Bracelete == nil && u.Oculos == nil
}

// TelemetryUpdate is a partial RouteTelemetry. Nil fields leave the stored value alone.
type TelemetryUpdate struct {
	Distance    *float64
	Speed       *float64
	Location    *string
	Latitude    *float64
	Longitude   *float64
	Temperature *float64
	Humidity    *float64
}

// Empty reports whether the update carries no field.
func (u TelemetryUpdate) Empty() bool {
	return u.Distance == nil && u.Speed == nil && u.Location == nil &&
		u.Latitude == nil && u.Longitude == nil &&
		u.Temperature == nil && u.Humidity == nil
}

// Telemetry keys accepted from the device.
const (
	KeyBracelete   = "bracelete"
	KeyOculos      = "oculos"
	KeyDistance    = "distancia"
	KeySpeed       = "velocidade"
	KeyLocation    = "localizacao"
	KeyLatitude    = "latitude"
	KeyLongitude   = "longitude"
	KeyTemperature = "temperatura"
	KeyHumidity    = "umidade"
	KeyAction      = "acao"
)

// ParseTelemetry extracts the recognized keys from a decoded JSON object.
// A key is taken only when its value has the expected JSON type; anything
// else is ignored so that garbled frames still apply what they can.
func ParseTelemetry(doc map[string]any) (DeviceUpdate, TelemetryUpdate) {
	var dev DeviceUpdate
	dev.Bracelete = boolField(doc, KeyBracelete)
	dev.Oculos = boolField(doc, KeyOculos)

	var tel TelemetryUpdate
	tel.Distance = numberField(doc, KeyDistance)
	tel.Speed = numberField(doc, KeySpeed)
	tel.Location = stringField(doc, KeyLocation)
	tel.Latitude = numberField(doc, KeyLatitude)
	tel.Longitude = numberField(doc, KeyLongitude)
	tel.Temperature = numberField(doc, KeyTemperature)
	tel.Humidity = numberField(doc, KeyHumidity)

	return dev, tel
}

// ParseAction returns the "acao" value of a decoded JSON object.
// ok is false when the key is missing or not a string.
func ParseAction(doc map[string]any) (Action, bool) {
	s := stringField(doc, KeyAction)
	if s == nil {
		return "", false
	}
	return Action(*s), true
}

func boolField(doc map[string]any, key string) *bool {
	v, ok := doc[key].(bool)
	if !ok {
		return nil
	}
	return &v
}

// numberField accepts float64 or json.Number values. Numbers that do not fit
// in a finite float64 are dropped like any other mistyped value.
func numberField(doc map[string]any, key string) *float64 {
	var v float64
	switch n := doc[key].(type) {
	case float64:
		v = n
	case json.Number:
		f, err := strconv.ParseFloat(string(n), 64)
		if err != nil {
			return nil
		}
		v = f
	default:
		return nil
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func stringField(doc map[string]any, key string) *string {
	v, ok := doc[key].(string)
	if !ok {
		return nil
	}
	return &v
}
