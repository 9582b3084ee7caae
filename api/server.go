package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/openfleet/gt06d/config"
	"github.com/openfleet/gt06d/gt06"
	"github.com/openfleet/gt06d/model"
	"github.com/openfleet/gt06d/pipeline"
	"github.com/openfleet/gt06d/presence"
)

/*
Server exposes the command surface of the tracker core over HTTP:

	POST /relay/on                {"imei": "..."}
	POST /relay/off               {"imei": "..."}
	GET  /relay/status/{imei}
	GET  /connection/status/{imei}
	GET  /devices/online

Authentication and the rest of the fleet CRUD live in a separate service;
this surface only covers what maps onto the dispatcher and the registry.
*/
type Server struct {
	ctx        context.Context
	wg         *sync.WaitGroup
	host       string
	port       int
	dispatcher *gt06.Dispatcher
	registry   *gt06.Registry
	devices    pipeline.DeviceRegistry
	store      pipeline.TelemetryStore
	presence   *presence.Tracker
}

func NewServer(ctx context.Context, wg *sync.WaitGroup, cfg *config.ApiConfig, dispatcher *gt06.Dispatcher, registry *gt06.Registry, devices pipeline.DeviceRegistry, store pipeline.TelemetryStore, presenceTracker *presence.Tracker) *Server {
	return &Server{
		ctx:        ctx,
		wg:         wg,
		host:       cfg.Host,
		port:       cfg.Port,
		dispatcher: dispatcher,
		registry:   registry,
		devices:    devices,
		store:      store,
		presence:   presenceTracker,
	}
}

func (s *Server) Start() {
	log := config.GetLogger(s.ctx)

	url := fmt.Sprintf("%s:%d", s.host, s.port)

	log.Infof("Start command API server on %s", url)

	httpServer := &http.Server{
		Addr:              url,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Errorf("Error in command API server. %v", err)
		}
	}()

	<-s.ctx.Done()
	err := httpServer.Shutdown(context.Background())
	if err != nil {
		log.Errorf("Failed to stop command API server. %v", err)
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/relay/on", s.relayHandler(gt06.CommandRelayOn, true))
	mux.HandleFunc("/relay/off", s.relayHandler(gt06.CommandRelayOff, false))
	mux.HandleFunc("/relay/status/", s.relayStatusHandler)
	mux.HandleFunc("/connection/status/", s.connectionStatusHandler)
	mux.HandleFunc("/devices/online", s.onlineDevicesHandler)
	return mux
}

type relayRequest struct {
	Imei string `json:"imei"`
}

func (s *Server) relayHandler(command string, relayOn bool) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		log := config.GetLogger(s.ctx)

		if req.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var body relayRequest
		err := json.NewDecoder(req.Body).Decode(&body)
		if err != nil || body.Imei == "" {
			writeError(w, http.StatusBadRequest, "imei is required")
			return
		}

		device, err := s.devices.FindDeviceByImei(req.Context(), body.Imei)
		if err != nil {
			log.Errorf("Failed to look up device with %s IMEI. %v", body.Imei, err)
			writeError(w, http.StatusInternalServerError, "device lookup failed")
			return
		}
		if device == nil {
			writeError(w, http.StatusNotFound, "device not found")
			return
		}

		err = s.dispatcher.SendCommand(body.Imei, command)
		if err != nil {
			log.Warningf("Failed to send %s command to device with %s IMEI. %v", command, body.Imei, err)

			status := http.StatusBadGateway
			if errors.Is(err, gt06.ErrNotConnected) || errors.Is(err, gt06.ErrReconnectExhausted) {
				status = http.StatusServiceUnavailable
			}
			writeError(w, status, err.Error())
			return
		}

		// Record the commanded relay state as a fresh sample, keeping the
		// status history append only.
		s.appendRelaySample(req.Context(), body.Imei, relayOn)

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":     true,
			"imei":        body.Imei,
			"relayStatus": relayStateString(relayOn),
		})
	}
}

func (s *Server) appendRelaySample(ctx context.Context, imei string, relayOn bool) {
	log := config.GetLogger(s.ctx)

	latest, err := s.store.LatestStatus(ctx, imei)
	if err != nil {
		log.Errorf("Failed to fetch latest status of device with %s IMEI. %v", imei, err)
	}

	sample := &model.StatusSample{
		Imei:      imei,
		Relay:     relayOn,
		CreatedAt: time.Now(),
	}
	if latest != nil {
		sample.Battery = latest.Battery
		sample.Signal = latest.Signal
		sample.Ignition = latest.Ignition
		sample.Charging = latest.Charging
	}

	err = s.store.AppendStatus(ctx, sample)
	if err != nil {
		log.Errorf("Failed to persist relay state of device with %s IMEI. %v", imei, err)
	}
}

func (s *Server) relayStatusHandler(w http.ResponseWriter, req *http.Request) {
	log := config.GetLogger(s.ctx)

	imei := strings.TrimPrefix(req.URL.Path, "/relay/status/")
	if imei == "" {
		writeError(w, http.StatusBadRequest, "imei is required")
		return
	}

	latest, err := s.store.LatestStatus(req.Context(), imei)
	if err != nil {
		log.Errorf("Failed to fetch latest status of device with %s IMEI. %v", imei, err)
		writeError(w, http.StatusInternalServerError, "status lookup failed")
		return
	}

	response := map[string]interface{}{
		"imei":        imei,
		"relayStatus": relayStateString(latest != nil && latest.Relay),
	}
	if latest != nil {
		response["lastUpdated"] = latest.CreatedAt
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) connectionStatusHandler(w http.ResponseWriter, req *http.Request) {
	imei := strings.TrimPrefix(req.URL.Path, "/connection/status/")
	if imei == "" {
		writeError(w, http.StatusBadRequest, "imei is required")
		return
	}

	response := map[string]interface{}{
		"imei":      imei,
		"connected": s.registry.IsOnline(imei),
	}

	if dc, ok := s.registry.LookupByImei(imei); ok {
		response["lastSeen"] = dc.LastSeen
	} else if instance, ok := s.presence.Lookup(req.Context(), imei); ok {
		// Not connected here, but another instance may hold the socket.
		response["connected"] = true
		response["instance"] = instance
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) onlineDevicesHandler(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.ListOnline())
}

func relayStateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
