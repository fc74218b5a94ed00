// espsim pretends to be the tracking device: it connects to the relay as
// role "esp", streams telemetry and logs the route commands it receives.
// Usage: go run ./cmd/espsim --url ws://localhost:8080/ --interval 1s
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/rota-relay/internal/connection"
	"github.com/rickgao/rota-relay/internal/model"
)

// reading is one telemetry frame as the device sends it.
type reading struct {
	Bracelete bool `json:"bracelete"`
	Oculos    bool `json:"oculos"`
	model.RouteTelemetry
}

// device holds the simulated route.
type device struct {
	active  bool
	reading reading
}

func newDevice(lat, lon float64) *device {
	temp := 24.0
	hum := 55.0
	return &device{
		reading: reading{
			Bracelete: true,
			Oculos:    true,
			RouteTelemetry: model.RouteTelemetry{
				Location:    model.DefaultLocation,
				Latitude:    lat,
				Longitude:   lon,
				Temperature: &temp,
				Humidity:    &hum,
			},
		},
	}
}

// step advances the simulation by dt. Distance only grows on an active route.
func (d *device) step(dt time.Duration) reading {
	r := &d.reading
	if d.active {
		r.Speed = 4 + rand.Float64()*2 // walking pace, km/h
		r.Distance += r.Speed * dt.Hours()
		r.Latitude += (rand.Float64() - 0.5) * 0.0002
		r.Longitude += (rand.Float64() - 0.5) * 0.0002
		r.Location = "Em movimento"
	} else {
		r.Speed = 0
		r.Location = "Parado"
	}
	*r.Temperature += (rand.Float64() - 0.5) * 0.2
	*r.Humidity += (rand.Float64() - 0.5) * 0.5

	return *r
}

// apply handles a command frame. Returns false for frames that are not
// route commands.
func (d *device) apply(data []byte) (model.Action, bool) {
	var cmd model.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return "", false
	}
	switch cmd.Action {
	case model.ActionStartRoute:
		d.active = true
		d.reading.Distance = 0
	case model.ActionFinishRoute:
		d.active = false
	default:
		return cmd.Action, false
	}
	return cmd.Action, true
}

func main() {
	url := flag.String("url", "ws://localhost:8080/", "relay WebSocket URL")
	interval := flag.Duration("interval", time.Second, "telemetry interval")
	reconnect := flag.Duration("reconnect", 1200*time.Millisecond, "delay before reconnecting")
	lat := flag.Float64("lat", -23.5614, "starting latitude")
	lon := flag.Float64("lon", -46.6559, "starting longitude")
	verbose := flag.Bool("verbose", false, "log every frame")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	dev := newDevice(*lat, *lon)

	for {
		err := session(ctx, *url, *interval, dev, logger)
		if ctx.Err() != nil {
			break
		}
		logger.Warn("disconnected from relay, retrying", "error", err, "delay", *reconnect)

		select {
		case <-ctx.Done():
		case <-time.After(*reconnect):
		}
		if ctx.Err() != nil {
			break
		}
	}

	logger.Info("shutdown complete")
}

// session runs one connection until it fails or ctx is done.
func session(ctx context.Context, url string, interval time.Duration, dev *device, logger *slog.Logger) error {
	cfg := connection.DefaultClientConfig()
	cfg.URL = url
	cfg.Role = connection.RoleESP

	client, err := connection.Dial(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	logger.Info("connected to relay", "url", url)

	// Frames are handed over to this goroutine so dev has a single owner.
	stop := make(chan struct{})
	defer close(stop)
	frames := make(chan connection.Frame, 16)
	runErr := make(chan error, 1)
	go func() {
		runErr <- client.Run(ctx, func(f connection.Frame) {
			select {
			case frames <- f:
			case <-stop:
			}
		})
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-runErr:
			return err

		case f := <-frames:
			action, ok := dev.apply(f.Data)
			if !ok {
				logger.Debug("ignoring frame", "data", string(f.Data))
				continue
			}
			logger.Info("command received", "acao", string(action), "route_active", dev.active)

		case <-ticker.C:
			r := dev.step(interval)
			if err := client.SendJSON(r); err != nil {
				if errors.Is(err, connection.ErrNotConnected) {
					return err
				}
				logger.Warn("send telemetry failed", "error", err)
				continue
			}
			logger.Debug("telemetry sent",
				"distancia", r.Distance,
				"velocidade", r.Speed,
				"route_active", dev.active,
			)
		}
	}
}
