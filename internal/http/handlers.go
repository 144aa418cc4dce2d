package http

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kodexArg/dj-indoor-monitor/internal/cache"
	"github.com/kodexArg/dj-indoor-monitor/internal/engine"
	"github.com/kodexArg/dj-indoor-monitor/internal/export"
	"github.com/kodexArg/dj-indoor-monitor/internal/metrics"
	"github.com/kodexArg/dj-indoor-monitor/internal/models"
	"github.com/kodexArg/dj-indoor-monitor/internal/services"
	"github.com/kodexArg/dj-indoor-monitor/internal/store"
)

const maxPayloadBytes = 1 << 20

// ResponseCache stores serialized responses by key
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, body []byte) error
}

// ClientCounter reports live websocket clients
type ClientCounter interface {
	GetConnectedClientsCount() int
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	store         store.ReadingStore
	engine        *engine.Engine
	ingestor      *services.Ingestor
	cache         ResponseCache
	clients       ClientCounter
	metrics       *metrics.Metrics
	exportService *export.ExportService
	now           func() time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(deps Dependencies) *Handlers {
	return &Handlers{
		store:         deps.Store,
		engine:        deps.Engine,
		ingestor:      deps.Ingestor,
		cache:         deps.Cache,
		clients:       deps.Clients,
		metrics:       deps.Metrics,
		exportService: export.NewExportService(deps.Engine.Config().Precision),
		now:           time.Now,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success  bool        `json:"success"`
	Message  string      `json:"message,omitempty"`
	Data     interface{} `json:"data,omitempty"`
	Metadata interface{} `json:"metadata,omitempty"`
	Error    string      `json:"error,omitempty"`
	Field    string      `json:"field,omitempty"`
}

func sendJSON(w http.ResponseWriter, statusCode int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

// sendErrorResponse sends a standardized error response
func sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	sendJSON(w, statusCode, APIResponse{Success: false, Error: message})
}

// sendEngineError maps engine errors to HTTP status codes
func sendEngineError(w http.ResponseWriter, err error) {
	var validation *engine.ValidationError
	if errors.As(err, &validation) {
		sendJSON(w, http.StatusBadRequest, APIResponse{
			Success: false,
			Error:   validation.Error(),
			Field:   validation.Field,
		})
		return
	}

	var access *engine.DataAccessError
	if errors.As(err, &access) {
		log.Printf("❌ API: %v", access)
		sendErrorResponse(w, "Reading store unavailable", http.StatusInternalServerError)
		return
	}

	log.Printf("❌ API: Unexpected error: %v", err)
	sendErrorResponse(w, "Internal server error", http.StatusInternalServerError)
}

// Health pings the reading store
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		log.Printf("⚠️  Health: store ping failed: %v", err)
		sendErrorResponse(w, "Reading store unreachable", http.StatusServiceUnavailable)
		return
	}

	sendJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":      "ok",
			"server_time": h.now().UTC(),
		},
	})
}

// ListSensorData returns raw readings, newest first
func (h *Handlers) ListSensorData(w http.ResponseWriter, r *http.Request) {
	q, err := h.engine.ParseQuery(r.URL.Query(), engine.ModeList)
	if err != nil {
		sendEngineError(w, err)
		return
	}

	result, err := h.engine.List(r.Context(), q)
	if err != nil {
		sendEngineError(w, err)
		return
	}
	h.metrics.QueryRecords("list", result.Metadata.RecordCount)

	sendJSON(w, http.StatusOK, APIResponse{
		Success:  true,
		Data:     result.Results,
		Metadata: result.Metadata,
	})
}

// AddSensorData handles POST requests carrying one device payload
func (h *Handlers) AddSensorData(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	readings, err := h.ingestor.IngestPayload(r.Context(), services.SourceHTTP, body, r.URL.Query().Get("sensor"))
	if err != nil {
		if errors.Is(err, services.ErrStore) {
			sendErrorResponse(w, "Failed to store sensor data", http.StatusInternalServerError)
			return
		}
		sendErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	sendJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Message: "Sensor data added successfully",
		Data: map[string]interface{}{
			"count":    len(readings),
			"readings": readings,
		},
	})
}

// GetLatestReadings returns the newest reading per (sensor, metric)
func (h *Handlers) GetLatestReadings(w http.ResponseWriter, r *http.Request) {
	q, err := h.engine.ParseQuery(r.URL.Query(), engine.ModeLatest)
	if err != nil {
		sendEngineError(w, err)
		return
	}

	rows, err := h.engine.Latest(r.Context(), q)
	if err != nil {
		sendEngineError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, APIResponse{Success: true, Data: rows})
}

// GetTimeframed returns bucketed aggregates. Responses for explicit,
// already closed ranges are served from the cache when one is configured.
// Room annotated responses are never cached since rooms can be reassigned.
func (h *Handlers) GetTimeframed(w http.ResponseWriter, r *http.Request) {
	q, err := h.engine.ParseQuery(r.URL.Query(), engine.ModeTimeframed)
	if err != nil {
		sendEngineError(w, err)
		return
	}

	ctx := r.Context()
	var key string
	if h.cache != nil && q.Explicit && !q.Rooms && q.End.Before(h.now()) {
		key = cache.Key(r.URL.Path, q)
		body, hit, err := h.cache.Get(ctx, key)
		if err != nil {
			log.Printf("⚠️  Cache: %v", err)
		}
		if hit {
			h.metrics.CacheHit()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "HIT")
			w.Write(body)
			return
		}
		h.metrics.CacheMiss()
	}

	result, err := h.engine.Timeframed(ctx, q)
	if err != nil {
		sendEngineError(w, err)
		return
	}
	h.metrics.QueryRecords("timeframed", result.Metadata.RecordCount)

	body, err := json.Marshal(APIResponse{
		Success:  true,
		Data:     result.Data,
		Metadata: result.Metadata,
	})
	if err != nil {
		sendErrorResponse(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
	if key != "" {
		if err := h.cache.Set(ctx, key, body); err != nil {
			log.Printf("⚠️  Cache: %v", err)
		}
		w.Header().Set("X-Cache", "MISS")
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// exportData runs a timeframed query and gathers what the exporters need
func (h *Handlers) exportData(r *http.Request) (export.ExportData, error) {
	q, err := h.engine.ParseQuery(r.URL.Query(), engine.ModeTimeframed)
	if err != nil {
		return export.ExportData{}, err
	}

	result, err := h.engine.Timeframed(r.Context(), q)
	if err != nil {
		return export.ExportData{}, err
	}

	meta := result.Metadata
	return export.ExportData{
		Rows:     result.Rows,
		Excluded: meta.ExcludedItems,
		Rooms:    result.Rooms,
		ExportMetadata: export.ExportMetadata{
			GeneratedAt: h.now().UTC(),
			StartDate:   meta.StartDate,
			EndDate:     meta.EndDate,
			Timeframe:   meta.Timeframe,
			RecordCount: meta.RecordCount,
			SensorIDs:   meta.SensorIDs,
		},
	}, nil
}

func (h *Handlers) roomMap(ctx context.Context) (map[string]string, error) {
	entries, err := h.store.SensorRooms(ctx)
	if err != nil {
		return nil, &engine.DataAccessError{Op: "sensor registry", Err: err}
	}
	rooms := make(map[string]string, len(entries))
	for _, e := range entries {
		rooms[e.Sensor] = e.Room
	}
	return rooms, nil
}

func exportFilename(meta export.ExportMetadata, ext string) string {
	return fmt.Sprintf("indoor_sensors_%s_to_%s.%s",
		meta.StartDate.Format("20060102T1504"), meta.EndDate.Format("20060102T1504"), ext)
}

// ExportExcel handles GET requests to export aggregated readings as Excel
func (h *Handlers) ExportExcel(w http.ResponseWriter, r *http.Request) {
	data, err := h.exportData(r)
	if err != nil {
		sendEngineError(w, err)
		return
	}

	excelFile, err := h.exportService.GenerateExcel(data)
	if err != nil {
		log.Printf("❌ Export: %v", err)
		sendErrorResponse(w, "Failed to generate Excel file", http.StatusInternalServerError)
		return
	}
	defer excelFile.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", exportFilename(data.ExportMetadata, "xlsx")))

	if err := excelFile.Write(w); err != nil {
		log.Printf("❌ Export: Failed to write Excel file: %v", err)
	}
}

// ExportCSV handles GET requests to export readings as CSV. layout=wide
// writes the raw frame table instead of the aggregated rows.
func (h *Handlers) ExportCSV(w http.ResponseWriter, r *http.Request) {
	var (
		records  [][]string
		filename string
		err      error
	)

	if strings.EqualFold(r.URL.Query().Get("layout"), "wide") {
		q, qerr := h.engine.ParseQuery(r.URL.Query(), engine.ModeTimeframed)
		if qerr != nil {
			sendEngineError(w, qerr)
			return
		}
		frame, ferr := h.engine.Frame(r.Context(), q)
		if ferr != nil {
			sendEngineError(w, ferr)
			return
		}
		records, err = h.exportService.GenerateWideCSV(frame.Table())
		filename = exportFilename(export.ExportMetadata{StartDate: q.Start, EndDate: q.End}, "csv")
	} else {
		data, derr := h.exportData(r)
		if derr != nil {
			sendEngineError(w, derr)
			return
		}
		records, err = h.exportService.GenerateCSV(data)
		filename = exportFilename(data.ExportMetadata, "csv")
	}
	if err != nil {
		sendErrorResponse(w, "Failed to generate CSV data", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))

	csvWriter := csv.NewWriter(w)
	if err := h.exportService.WriteCSV(csvWriter, records); err != nil {
		log.Printf("❌ Export: Failed to write CSV data: %v", err)
	}
}

// SensorInfo is one entry of the sensor listing
type SensorInfo struct {
	Sensor string `json:"sensor"`
	Room   string `json:"room,omitempty"`
}

// ListSensors returns every sensor with readings or a registry entry
func (h *Handlers) ListSensors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sensors, err := h.store.ListSensors(ctx)
	if err != nil {
		sendEngineError(w, &engine.DataAccessError{Op: "list sensors", Err: err})
		return
	}
	rooms, err := h.roomMap(ctx)
	if err != nil {
		sendEngineError(w, err)
		return
	}

	seen := make(map[string]bool, len(sensors))
	out := make([]SensorInfo, 0, len(sensors))
	for _, s := range sensors {
		seen[s] = true
		out = append(out, SensorInfo{Sensor: s, Room: rooms[s]})
	}
	for s, room := range rooms {
		if !seen[s] {
			out = append(out, SensorInfo{Sensor: s, Room: room})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sensor < out[j].Sensor })

	sendJSON(w, http.StatusOK, APIResponse{Success: true, Data: out})
}

// SetSensorRoom assigns a sensor to a room
func (h *Handlers) SetSensorRoom(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Room string `json:"room"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayloadBytes)).Decode(&request); err != nil {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	entry := models.SensorRoom{
		Sensor: strings.TrimSpace(chi.URLParam(r, "sensor")),
		Room:   strings.TrimSpace(request.Room),
	}
	if entry.Sensor == "" || entry.Room == "" {
		sendJSON(w, http.StatusBadRequest, APIResponse{Success: false, Error: "sensor and room are required", Field: "room"})
		return
	}

	if err := h.store.SetSensorRoom(r.Context(), entry); err != nil {
		sendEngineError(w, &engine.DataAccessError{Op: "set sensor room", Err: err})
		return
	}

	sendJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: "Sensor room updated",
		Data:    entry,
	})
}

// GetSystemStats returns system statistics
func (h *Handlers) GetSystemStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now().UTC()

	total, err := h.store.CountReadings(ctx, store.ReadingQuery{Start: time.Unix(0, 0).UTC(), End: now})
	if err != nil {
		sendEngineError(w, &engine.DataAccessError{Op: "count", Err: err})
		return
	}
	sensors, err := h.store.ListSensors(ctx)
	if err != nil {
		sendEngineError(w, &engine.DataAccessError{Op: "list sensors", Err: err})
		return
	}

	stats := map[string]interface{}{
		"total_readings": total,
		"sensors":        sensors,
		"active_sensors": len(sensors),
		"server_time":    now,
	}
	if h.clients != nil {
		stats["ws_clients"] = h.clients.GetConnectedClientsCount()
	}

	sendJSON(w, http.StatusOK, APIResponse{Success: true, Data: stats})
}
