package sunlightmeter

import (
	"database/sql"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/ztkent/lux-meter/internal/tools"
)

// Reference lux levels drawn behind the readings, dimmest first.
var lightLevels = []struct {
	Lux   int
	Title string
	Color string
}{
	{500, "Shade", "DarkGrey"},
	{1000, "Partial Shade", "WhiteSmoke"},
	{10000, "Partial Sun", "SkyBlue"},
	{25000, "Full Sun", "Yellow"},
}

// Serve the sqlite db for download
func (m *SLMeter) ServeResultsDB() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", "sunlightmeter.db"))
		w.Header().Set("Content-Type", "application/octet-stream")
		http.ServeFile(w, r, m.dbPath())
	}
}

// Serve the homepage
func (m *SLMeter) ServeDashboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fileContent, err := parseHTMLFile("html/dashboard.html")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		w.Write(fileContent)
	}
}

func parseHTMLFile(path string) ([]byte, error) {
	content, err := templateFiles.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded html file: %w", err)
	}
	return content, nil
}

// Serve the controls for the sensor, start/stop/read/export/exposure
func (m *SLMeter) ServeSunlightControls() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tmpl, err := parseTemplateFile("html/controls.gohtml")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		err = tmpl.Execute(w, m.exposureStatus())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

// Status of the sensor
func (m *SLMeter) ServeSensorStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tmpl, err := parseTemplateFile("html/status.gohtml")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		err = tmpl.Execute(w, m.exposureStatus())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

// Serve the results graph
func (m *SLMeter) ServeResultsGraph() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Get the date range for the graph from the request
		startDate, endDate := tools.ParseStartAndEndDate(r, m.location())

		rows, err := m.ResultsDB.Query(`SELECT lux, white, created_at FROM sunlight
			WHERE created_at BETWEEN ? AND ? ORDER BY created_at`, startDate, endDate)
		if err != nil {
			l.Error(err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer rows.Close()

		// Prepare the data for the chart
		var luxValues, whiteValues []opts.LineData
		var timeValues []string
		maxLux := 5000
		for rows.Next() {
			var lux, white float64
			var createdAt time.Time
			if err := rows.Scan(&lux, &white, &createdAt); err != nil {
				l.Error(err)
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if peak := math.Max(lux, white); peak > float64(maxLux) {
				// Round up to the nearest 5000
				maxLux = int(math.Ceil(peak/5000) * 5000)
			}
			luxValues = append(luxValues, opts.LineData{Value: lux})
			whiteValues = append(whiteValues, opts.LineData{Value: white})
			timeValues = append(timeValues, createdAt.In(m.location()).Format("2006-01-02 15:04:05"))
		}
		if err := rows.Err(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		line := charts.NewLine()
		for _, level := range lightLevels {
			data := make([]opts.LineData, len(timeValues))
			for i := range data {
				data[i] = opts.LineData{Value: level.Lux}
			}
			line.AddSeries(level.Title, data, charts.WithLineChartOpts(opts.LineChart{
				Color: level.Color,
			}))
		}

		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{
				Theme: types.ThemeChalk,
			}),
			charts.WithXAxisOpts(opts.XAxis{
				Name: "Time",
			}),
			charts.WithYAxisOpts(opts.YAxis{
				Name: "Lux",
				Min:  "0",
				Max:  fmt.Sprintf("%d", maxLux),
			}),
			charts.WithTooltipOpts(opts.Tooltip{
				Show:      true,
				Trigger:   "axis",
				TriggerOn: "mousemove",
				Formatter: "{a4}: {c4}<br>{a5}: {c5}<br> Time: {b0}",
			}),
			charts.WithToolboxOpts(opts.Toolbox{
				Show: true,
				Feature: &opts.ToolBoxFeature{
					SaveAsImage: &opts.ToolBoxFeatureSaveAsImage{
						Show:  true,
						Title: "Save as Image",
						Name:  "lux-meter",
					},
				},
			}),
		)
		line.SetXAxis(timeValues).
			AddSeries("Lux", luxValues).
			AddSeries("White", whiteValues)

		page := components.NewPage()
		page.AddCharts(line)

		w.Header().Set("Content-Type", "text/html")
		page.Render(w)
		// Trigger an update for the results tab
		w.Write([]byte(`<div id='resultUpdateTrigger' hx-post='/sunlightmeter/results' hx-target='#resultsContent' hx-trigger='load'></div>`))
		w.Write([]byte(`<script>document.title = "Lux Meter";</script>`))
	}
}

// Update the info in the results tab
func (m *SLMeter) ServeResultsTab() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conditions, err := m.getCurrentConditions()
		if err != nil && err != sql.ErrNoRows {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		startDate, endDate := tools.ParseStartAndEndDate(r, m.location())
		conditions, err = m.getHistoricalConditions(conditions, startDate, endDate)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		tmpl, err := parseTemplateFile("html/results.gohtml")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		type ConditionsForDisplay struct {
			JobID                 string
			Lux                   string
			White                 string
			Raw                   int
			Exposure              string
			Classification        string
			DateRange             string
			RecordedHoursInRange  string
			FullSunlightInRange   string
			LightConditionInRange string
			AverageLuxInRange     string
			DegradedInRange       int
			StartDate             string
			EndDate               string
		}
		exposure := ""
		if conditions.Gain != "" {
			exposure = fmt.Sprintf("%s / %dms", conditions.Gain, conditions.IntegrationMs)
		}
		err = tmpl.Execute(w, ConditionsForDisplay{
			JobID:                 conditions.JobID,
			Lux:                   fmt.Sprintf("%.4f", conditions.Lux),
			White:                 fmt.Sprintf("%.4f", conditions.White),
			Raw:                   conditions.Raw,
			Exposure:              exposure,
			Classification:        conditions.Classification,
			DateRange:             conditions.DateRange,
			RecordedHoursInRange:  fmt.Sprintf("%.4f", conditions.RecordedHoursInRange),
			FullSunlightInRange:   fmt.Sprintf("%.4f", conditions.FullSunlightInRange),
			LightConditionInRange: conditions.LightConditionInRange,
			AverageLuxInRange:     fmt.Sprintf("%.4f", conditions.AverageLuxInRange),
			DegradedInRange:       conditions.DegradedInRange,
			StartDate:             startDate,
			EndDate:               endDate,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

// Summarize the readings recorded between startDate and endDate (UTC)
func (m *SLMeter) getHistoricalConditions(conditions Conditions, startDate string, endDate string) (Conditions, error) {
	if m.ResultsDB == nil {
		return conditions, nil
	}
	conditions.DateRange = fmt.Sprintf("%s - %s UTC", startDate, endDate)

	row := m.ResultsDB.QueryRow(`
    SELECT
        COALESCE(AVG(lux), 0),
        COUNT(CASE WHEN classification != 'GOOD' THEN 1 END),
        MIN(created_at),
        MAX(created_at)
    FROM sunlight
    WHERE created_at BETWEEN ? AND ?`, startDate, endDate)
	var oldest, mostRecent sql.NullString
	err := row.Scan(&conditions.AverageLuxInRange, &conditions.DegradedInRange, &oldest, &mostRecent)
	if err != nil {
		return conditions, err
	}
	if !oldest.Valid || !mostRecent.Valid {
		conditions.LightConditionInRange = "No Data in Range"
		return conditions, nil
	}

	// Minutes where the average lux was above 10k
	var fullSunMinutes int
	err = m.ResultsDB.QueryRow(`
    SELECT COUNT(*)
    FROM (
        SELECT AVG(lux) as avg_lux
        FROM sunlight
        WHERE created_at BETWEEN ? AND ?
        GROUP BY strftime('%Y-%m-%d %H:%M', created_at)
    )
    WHERE avg_lux > 10000`, startDate, endDate).Scan(&fullSunMinutes)
	if err != nil {
		return conditions, err
	}
	conditions.FullSunlightInRange = float64(fullSunMinutes) / 60

	start, end, err := tools.StartAndEndDateToTime(oldest.String, mostRecent.String)
	if err != nil {
		return conditions, err
	}
	conditions.RecordedHoursInRange = end.Sub(start).Hours()
	conditions.LightConditionInRange = lightCondition(conditions.FullSunlightInRange, conditions.RecordedHoursInRange)
	return conditions, nil
}

func lightCondition(fullSunHours, recordedHours float64) string {
	if recordedHours <= 0 {
		return "Not Enough Data"
	}
	ratio := fullSunHours / recordedHours
	switch {
	case ratio > 0.5:
		return "Full Sun"
	case ratio > 0.25:
		return "Partial Sun"
	case ratio > 0.1:
		return "Partial Shade"
	default:
		return "Shade"
	}
}

// Used to clear a div with htmx
func (m *SLMeter) Clear() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
	}
}
