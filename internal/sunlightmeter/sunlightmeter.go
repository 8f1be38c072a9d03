package sunlightmeter

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ztkent/lux-meter/internal/publish"
	"github.com/ztkent/lux-meter/veml7700"
)

//go:embed html/*
var templateFiles embed.FS

var l = logrus.New()

// SetLogger replaces the package logger.
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		l = logger
	}
}

// SLMeter runs recording jobs against one VEML7700. All sensor access goes
// through mu; the driver itself is not safe for concurrent use.
type SLMeter struct {
	*veml7700.VEML7700
	LuxResultsChan chan LuxResults
	ResultsDB      *sql.DB
	Publisher      publish.Publisher
	Pid            int
	RecordInterval time.Duration
	MaxJobDuration time.Duration
	DBPath         string
	Location       *time.Location

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	jobID  string
	sleep  func(time.Duration)
}

type LuxResults struct {
	JobID          string    `json:"jobID,omitempty"`
	Lux            float64   `json:"lux"`
	White          float64   `json:"white"`
	Raw            uint16    `json:"raw"`
	Gain           string    `json:"gain"`
	IntegrationMs  int       `json:"integrationMs"`
	Classification string    `json:"classification"`
	Changed        bool      `json:"changed"`
	SettleMs       int64     `json:"settleMs"`
	Time           time.Time `json:"time"`
}

type Conditions struct {
	JobID                 string  `json:"jobID"`
	Lux                   float64 `json:"lux"`
	White                 float64 `json:"white"`
	Raw                   int     `json:"raw"`
	Gain                  string  `json:"gain"`
	IntegrationMs         int     `json:"integrationMs"`
	Classification        string  `json:"classification"`
	DateRange             string  `json:"dateRange"`
	RecordedHoursInRange  float64 `json:"recordedHoursInRange"`
	FullSunlightInRange   float64 `json:"fullSunlightInRange"`
	LightConditionInRange string  `json:"lightConditionInRange"`
	AverageLuxInRange     float64 `json:"averageLuxInRange"`
	DegradedInRange       int     `json:"degradedInRange"`
}

// ExposureStatus is the sensor configuration reported by the exposure endpoint.
type ExposureStatus struct {
	Connected     bool   `json:"connected"`
	Enabled       bool   `json:"enabled"`
	Running       bool   `json:"running"`
	JobID         string `json:"jobID,omitempty"`
	Gain          string `json:"gain"`
	IntegrationMs int    `json:"integrationMs"`
	Low           uint16 `json:"low"`
	High          uint16 `json:"high"`
}

const (
	MAX_JOB_DURATION = 8 * time.Hour
	RECORD_INTERVAL  = 30 * time.Second
	DB_PATH          = "sunlightmeter.db"
)

func (m *SLMeter) recordInterval() time.Duration {
	if m.RecordInterval > 0 {
		return m.RecordInterval
	}
	return RECORD_INTERVAL
}

func (m *SLMeter) maxJobDuration() time.Duration {
	if m.MaxJobDuration > 0 {
		return m.MaxJobDuration
	}
	return MAX_JOB_DURATION
}

func (m *SLMeter) dbPath() string {
	if m.DBPath != "" {
		return m.DBPath
	}
	return DB_PATH
}

func (m *SLMeter) location() *time.Location {
	if m.Location != nil {
		return m.Location
	}
	return time.UTC
}

func (m *SLMeter) wait(d time.Duration) {
	if m.sleep != nil {
		m.sleep(d)
		return
	}
	time.Sleep(d)
}

// Running reports whether a recording job is active.
func (m *SLMeter) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Start the sensor, and collect data in a loop
func (m *SLMeter) Start() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l.Info("It's going to be a bright day!")
		if m.VEML7700 == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}

		m.mu.Lock()
		if m.cancel != nil {
			m.mu.Unlock()
			ServeResponse(w, r, "The sensor is already started", http.StatusBadRequest)
			return
		}
		if err := m.Enable(true); err != nil {
			m.mu.Unlock()
			l.Errorf("Failed to enable the sensor: %v", err)
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}
		// Create a new context with a timeout to manage the sensor lifecycle
		ctx, cancel := context.WithTimeout(context.Background(), m.maxJobDuration())
		m.cancel = cancel
		m.done = make(chan struct{})
		m.jobID = uuid.New().String()
		go m.runJob(ctx, m.jobID, m.done)
		m.mu.Unlock()

		ServeResponse(w, r, "Sunlight Reading Started", http.StatusOK)
	}
}

// runJob takes one adaptive reading per record interval until ctx ends. An
// exposure change stretches the wait to at least its settle time.
func (m *SLMeter) runJob(ctx context.Context, jobID string, done chan struct{}) {
	defer close(done)
	defer m.finishJob()

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			l.Infof("Job %s finished: %v", jobID, ctx.Err())
			return
		case <-timer.C:
		}

		next := m.recordInterval()
		result, err := m.readAutoStep(jobID)
		switch {
		case errors.Is(err, veml7700.ErrOutOfDynamicRange):
			l.Warnf("Skipping reading, raw %d at %s/%dms is beyond the sensor range", result.Raw, result.Gain, result.IntegrationMs)
		case err != nil:
			l.Errorf("The sensor failed to get a reading: %v", err)
		default:
			if result.Changed {
				l.Debugf("Exposure adjusted after %s reading, settle %dms", result.Classification, result.SettleMs)
				if settle := time.Duration(result.SettleMs) * time.Millisecond; settle > next {
					next = settle
				}
			}
			select {
			case m.LuxResultsChan <- result:
			case <-ctx.Done():
				return
			}
		}
		timer.Reset(next)
	}
}

func (m *SLMeter) finishJob() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Enable(false); err != nil {
		l.Errorf("Failed to disable the sensor: %v", err)
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.jobID = ""
}

// readAutoStep reads the white channel and takes one adaptive ALS reading
// at the same exposure.
func (m *SLMeter) readAutoStep(jobID string) (LuxResults, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp := m.Exposure()
	whiteRaw, err := m.ReadWhiteCount()
	if err != nil {
		return LuxResults{}, err
	}
	res, err := m.ReadLuxAutoStep()
	if err != nil && !errors.Is(err, veml7700.ErrOutOfDynamicRange) {
		return LuxResults{}, err
	}
	result := newLuxResults(jobID, res)
	result.White = veml7700.CalibratedWhite(whiteRaw, exp.Gain, exp.IntegrationTime)
	return result, err
}

func newLuxResults(jobID string, res veml7700.AutoResult) LuxResults {
	return LuxResults{
		JobID:          jobID,
		Lux:            res.Lux,
		Raw:            res.Raw,
		Gain:           res.Exposure.Gain.String(),
		IntegrationMs:  res.Exposure.IntegrationMs(),
		Classification: res.Classification.String(),
		Changed:        res.Changed,
		SettleMs:       res.Settle.Milliseconds(),
		Time:           time.Now().UTC(),
	}
}

// Stop the sensor, and cancel the job context
func (m *SLMeter) Stop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.VEML7700 == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		cancel, done := m.cancel, m.done
		m.mu.Unlock()
		if cancel == nil {
			ServeResponse(w, r, "The sensor is already stopped", http.StatusBadRequest)
			return
		}

		cancel()
		<-done
		ServeResponse(w, r, "Sunlight Reading Stopped", http.StatusOK)
	}
}

// Read converges the exposure and returns a single reading. A disabled
// sensor is enabled for the read and disabled again afterwards.
func (m *SLMeter) Read() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.VEML7700 == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		result, err := m.readConverged()
		if errors.Is(err, veml7700.ErrOutOfDynamicRange) {
			ServeResponse(w, r, err.Error(), http.StatusUnprocessableEntity)
			return
		} else if err != nil {
			l.Errorf("Converging read failed: %v", err)
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}
		ServeJSON(w, r, result, http.StatusOK)
	}
}

func (m *SLMeter) readConverged() (LuxResults, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Enabled() {
		if err := m.Enable(true); err != nil {
			return LuxResults{}, err
		}
		defer func() {
			if err := m.Enable(false); err != nil {
				l.Errorf("Failed to disable the sensor: %v", err)
			}
		}()
		m.wait(m.Exposure().Settle())
	}

	res, err := m.ReadLuxAutoConverge()
	if err != nil {
		return newLuxResults("", res), err
	}
	result := newLuxResults("", res)
	// After a reversal the white register is mid-integration at the new exposure.
	if !res.Changed {
		whiteRaw, err := m.ReadWhiteCount()
		if err != nil {
			return result, err
		}
		result.White = veml7700.CalibratedWhite(whiteRaw, res.Exposure.Gain, res.Exposure.IntegrationTime)
	}
	return result, nil
}

// ExposureStatus reports the current gain, integration time and thresholds.
func (m *SLMeter) ExposureStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ServeJSON(w, r, m.exposureStatus(), http.StatusOK)
	}
}

func (m *SLMeter) exposureStatus() ExposureStatus {
	if m.VEML7700 == nil {
		return ExposureStatus{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	exp := m.Exposure()
	th := m.AutoThresholds()
	return ExposureStatus{
		Connected:     true,
		Enabled:       exp.Enabled,
		Running:       m.cancel != nil,
		JobID:         m.jobID,
		Gain:          exp.Gain.String(),
		IntegrationMs: exp.IntegrationMs(),
		Low:           th.Low,
		High:          th.High,
	}
}

// SetExposure takes "gain" (1/8x, 1/4x, 1x, 2x) and/or "integration_ms".
// A running job keeps adjusting from the new exposure.
func (m *SLMeter) SetExposure() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.VEML7700 == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		r.ParseForm()

		m.mu.Lock()
		exp := m.Exposure()
		gain, it := exp.Gain, exp.IntegrationTime
		var err error
		if v := r.FormValue("gain"); v != "" {
			gain, err = veml7700.ParseGain(v)
		}
		if v := r.FormValue("integration_ms"); v != "" && err == nil {
			var ms int
			if ms, err = strconv.Atoi(v); err == nil {
				it, err = veml7700.IntegrationTimeFromMs(ms)
			} else {
				err = fmt.Errorf("%w: %s", veml7700.ErrInvalidIntegrationTime, v)
			}
		}
		if err != nil {
			m.mu.Unlock()
			ServeResponse(w, r, err.Error(), http.StatusBadRequest)
			return
		}
		err = m.VEML7700.SetExposure(gain, it)
		m.mu.Unlock()
		if err != nil {
			l.Errorf("Failed to set exposure: %v", err)
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}
		ServeJSON(w, r, m.exposureStatus(), http.StatusOK)
	}
}

// SetThresholds takes "low" and "high" raw counts for the adaptive reads.
func (m *SLMeter) SetThresholds() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.VEML7700 == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		r.ParseForm()
		low, errLow := strconv.ParseUint(r.FormValue("low"), 10, 16)
		high, errHigh := strconv.ParseUint(r.FormValue("high"), 10, 16)
		if errLow != nil || errHigh != nil {
			ServeResponse(w, r, "low and high must be raw counts between 0 and 65535", http.StatusBadRequest)
			return
		}

		m.mu.Lock()
		err := m.SetAutoThresholds(uint16(low), uint16(high))
		m.mu.Unlock()
		if err != nil {
			ServeResponse(w, r, err.Error(), http.StatusBadRequest)
			return
		}
		ServeJSON(w, r, m.exposureStatus(), http.StatusOK)
	}
}

// Serve data about the most recent entry saved to the db
func (m *SLMeter) CurrentConditions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.VEML7700 == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		conditions, err := m.getCurrentConditions()
		if errors.Is(err, sql.ErrNoRows) {
			ServeResponse(w, r, "No readings have been recorded", http.StatusNotFound)
			return
		} else if err != nil {
			l.Error(err)
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}
		ServeJSON(w, r, conditions, http.StatusOK)
	}
}

// Return the most recent entry saved to the db
func (m *SLMeter) getCurrentConditions() (Conditions, error) {
	if m.ResultsDB == nil {
		return Conditions{}, nil
	}
	conditions := Conditions{}
	row := m.ResultsDB.QueryRow(`SELECT job_id, lux, white, raw_count, gain, integration_ms, classification
		FROM sunlight ORDER BY id DESC LIMIT 1`)
	err := row.Scan(&conditions.JobID, &conditions.Lux, &conditions.White, &conditions.Raw,
		&conditions.Gain, &conditions.IntegrationMs, &conditions.Classification)
	if err != nil {
		return Conditions{}, err
	}
	return conditions, nil
}

// Populate the response div with a message, or reply with a JSON message
func ServeResponse(w http.ResponseWriter, r *http.Request, message string, status int) {
	if strings.Contains(r.URL.Path, "/api/v1/") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"message": message})
		return
	}

	tmpl, err := parseTemplateFile("html/response.gohtml")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	err = tmpl.Execute(w, message)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// ServeJSON replies with v as a JSON document under /api/v1/, and shows it
// in the response div otherwise.
func ServeJSON(w http.ResponseWriter, r *http.Request, v interface{}, status int) {
	if strings.Contains(r.URL.Path, "/api/v1/") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(v)
		return
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	ServeResponse(w, r, string(data), status)
}

var templateFuncs = template.FuncMap{
	"gains": func() []string {
		var out []string
		for _, g := range veml7700.Gains() {
			out = append(out, g.String())
		}
		return out
	},
	"integrationTimes": func() []int {
		var out []int
		for _, it := range veml7700.IntegrationTimes() {
			out = append(out, it.Milliseconds())
		}
		return out
	},
}

func parseTemplateFile(path string) (*template.Template, error) {
	content, err := templateFiles.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded template: %w", err)
	}

	tmpl, err := template.New("results").Funcs(templateFuncs).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return tmpl, nil
}

// Read from LuxResultsChan until it is closed, write the results to sqlite
// and hand them to the publisher.
func (m *SLMeter) MonitorAndRecordResults() {
	l.Info("Monitoring for new Sunlight Messages...")
	for result := range m.LuxResultsChan {
		l.WithFields(logrus.Fields{
			"job_id":         result.JobID,
			"lux":            result.Lux,
			"raw":            result.Raw,
			"classification": result.Classification,
		}).Info("Reading")
		if err := m.recordResult(result); err != nil {
			l.Errorf("Failed to record reading: %v", err)
		}
	}
}

func (m *SLMeter) recordResult(result LuxResults) error {
	if math.IsInf(result.Lux, 0) || math.IsNaN(result.Lux) {
		l.Warn("Lux is invalid, skipping record")
		return nil
	}
	_, err := m.ResultsDB.Exec(
		`INSERT INTO sunlight (job_id, lux, white, raw_count, gain, integration_ms, classification)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		result.JobID,
		result.Lux,
		result.White,
		result.Raw,
		result.Gain,
		result.IntegrationMs,
		result.Classification,
	)
	if err != nil {
		return err
	}
	if m.Publisher != nil {
		err = m.Publisher.Publish(publish.Measurement{
			JobID:          result.JobID,
			Lux:            result.Lux,
			White:          result.White,
			Raw:            result.Raw,
			Gain:           result.Gain,
			IntegrationMs:  result.IntegrationMs,
			Classification: result.Classification,
			Timestamp:      result.Time,
		})
		if err != nil {
			return fmt.Errorf("publish: %w", err)
		}
	}
	return nil
}
