package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/ztkent/lux-meter/internal/config"
	"github.com/ztkent/lux-meter/internal/publish"
	slm "github.com/ztkent/lux-meter/internal/sunlightmeter"
	"github.com/ztkent/lux-meter/internal/tools"
	"github.com/ztkent/lux-meter/veml7700"
)

/*
	This is the primary entry point for the Lux Meter application.
	It should be running at startup, on a Raspberry Pi, with the VEML7700 sensor connected.
	SENSOR_TYPE=simulation runs it without hardware.
*/

var l = logrus.New()

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		l.Fatalf("Invalid configuration: %v", err)
	}
	logger, logFile, err := tools.NewLogger(cfg.LogLevel, cfg.LogPath)
	if err != nil {
		l.Fatalf("Failed to set up logging: %v", err)
	}
	defer logFile.Close()
	l = logger
	veml7700.SetLogger(logger)
	slm.SetLogger(logger)
	tools.SetLogger(logger)
	publish.SetLogger(logger)

	pid := os.Getpid()
	l.Infof("LuxMeter [%d]", pid)

	// connect to the lux sensor; the dashboard still serves without one
	bus, device, err := connectSensor(cfg)
	if err != nil {
		l.Errorf("Failed to connect to the VEML7700 sensor: %v", err)
	}
	if bus != nil {
		defer bus.Close()
	}

	// connect to the sqlite database
	slmDB, err := tools.ConnectSqlite(cfg.DBPath)
	if err != nil {
		// Unlike connecting to the sensor, this should always work.
		l.Fatalf("Failed to connect to the sqlite database: %v", err)
	}
	defer slmDB.Close()

	var publisher publish.Publisher
	if cfg.MQTT != nil {
		mqttPub, err := publish.NewMQTT(*cfg.MQTT)
		if err != nil {
			l.Errorf("MQTT disabled: %v", err)
		} else {
			publisher = mqttPub
			defer publisher.Close()
		}
	}

	loc, _ := cfg.Location()
	meter := &slm.SLMeter{
		VEML7700:       device,
		ResultsDB:      slmDB,
		LuxResultsChan: make(chan slm.LuxResults),
		Publisher:      publisher,
		Pid:            pid,
		RecordInterval: time.Duration(cfg.RecordInterval),
		MaxJobDuration: time.Duration(cfg.MaxJobDuration),
		DBPath:         cfg.DBPath,
		Location:       loc,
	}

	// Initialize router
	r := chi.NewRouter()
	// Log requests and recover from panics
	r.Use(middleware.Logger)
	r.Use(handleServerPanic)
	defineRoutes(r, meter, cfg.LocalOnly)

	server := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		l.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if cfg.SSL {
		// Generate a self-signed certificate if one doesn't exist
		if err := tools.EnsureCertificate(cfg.CertPath, cfg.KeyPath, "localhost", "127.0.0.1"); err != nil {
			l.Fatalf("Failed to prepare the certificate: %v", err)
		}
		l.Infof("Starting HTTPS server on port %s", cfg.Port)
		err = server.ListenAndServeTLS(cfg.CertPath, cfg.KeyPath)
	} else {
		l.Infof("Starting HTTP server on port %s", cfg.Port)
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Fatalf("Failed to start server: %v", err)
	}
}

// connectSensor opens the configured bus and initializes the sensor on it.
// The bus is returned even when the sensor does not answer.
func connectSensor(cfg config.Config) (veml7700.Bus, *veml7700.VEML7700, error) {
	opts, err := cfg.SensorOpts()
	if err != nil {
		return nil, nil, err
	}
	bus, err := openBus(cfg)
	if err != nil {
		return nil, nil, err
	}
	device, err := veml7700.NewVEML7700(bus, opts)
	if err != nil {
		return bus, nil, err
	}
	return bus, device, nil
}

func openBus(cfg config.Config) (veml7700.Bus, error) {
	if cfg.SensorType == config.SensorSimulation {
		l.Infof("Simulating a VEML7700 at %.1f lux", cfg.SimulatedLux)
		return veml7700.NewSimulator(cfg.SimulatedLux), nil
	}
	switch cfg.BusDriver {
	case config.BusPeriph:
		return veml7700.OpenPeriph(cfg.I2CBus)
	case config.BusDevfs:
		path := cfg.I2CBus
		if !strings.HasPrefix(path, "/") {
			path = "/dev/i2c-" + path
		}
		return veml7700.OpenDevfs(path), nil
	default:
		return nil, fmt.Errorf("unknown bus driver %q", cfg.BusDriver)
	}
}

func defineRoutes(r *chi.Mux, meter *slm.SLMeter, localOnly bool) {
	// Listen for any result messages from our jobs, record them in sqlite
	go meter.MonitorAndRecordResults()

	// Sunlight Meter Dashboard Controls
	r.Get("/", meter.ServeDashboard())
	r.Route("/sunlightmeter", func(r chi.Router) {
		if localOnly {
			r.Use(tools.CheckInNetwork)
		}
		r.Get("/start", meter.Start())
		r.Get("/stop", meter.Stop())
		r.Get("/read", meter.Read())
		r.Get("/current-conditions", meter.CurrentConditions())
		r.Get("/exposure", meter.ExposureStatus())
		r.Post("/exposure", meter.SetExposure())
		r.Post("/thresholds", meter.SetThresholds())
		r.Get("/export", meter.ServeResultsDB())
		r.Post("/graph", meter.ServeResultsGraph())
		r.Get("/controls", meter.ServeSunlightControls())
		r.Get("/status", meter.ServeSensorStatus())
		r.Post("/results", meter.ServeResultsTab())
		r.Get("/clear", meter.Clear())
	})

	// Sunlight Meter API, these serve a JSON response
	r.Route("/api/v1", func(r chi.Router) {
		if localOnly {
			r.Use(tools.CheckInNetwork)
		}
		r.Get("/start", meter.Start())
		r.Get("/stop", meter.Stop())
		r.Get("/read", meter.Read())
		r.Get("/current-conditions", meter.CurrentConditions())
		r.Get("/exposure", meter.ExposureStatus())
		r.Post("/exposure", meter.SetExposure())
		r.Post("/thresholds", meter.SetThresholds())
		r.Get("/export", meter.ServeResultsDB())
	})

	// Route for service identification
	r.Get("/id", func(w http.ResponseWriter, r *http.Request) {
		response := struct {
			ServiceName string `json:"service_name"`
		}{
			ServiceName: "Lux Meter",
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	})

	// Serve static files
	workDir, _ := os.Getwd()
	filesDir := filepath.Join(workDir, "internal", "sunlightmeter")
	FileServer(r, "/", http.Dir(filesDir))
}

func FileServer(r chi.Router, path string, root http.FileSystem) {
	r.Get(path+"*", func(w http.ResponseWriter, r *http.Request) {
		http.StripPrefix(path, http.FileServer(root)).ServeHTTP(w, r)
	})
}

func handleServerPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				l.Errorf("Recovered from panic on %s: %v", r.URL.Path, err)
				slm.ServeResponse(w, r, fmt.Sprintf("%v", err), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
