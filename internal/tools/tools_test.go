package tools

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckInNetwork(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	tests := []struct {
		remote string
		want   int
	}{
		{"127.0.0.1:5000", http.StatusNoContent},
		{"[::1]:5000", http.StatusNoContent},
		{"192.168.1.20:5000", http.StatusNoContent},
		{"10.1.2.3:5000", http.StatusNoContent},
		{"172.20.0.1:5000", http.StatusNoContent},
		{"8.8.8.8:5000", http.StatusForbidden},
		{"192.0.2.1:1234", http.StatusForbidden},
		{"garbage", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/sunlightmeter/start", nil)
			req.RemoteAddr = tt.remote
			rec := httptest.NewRecorder()
			CheckInNetwork(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestStartAndEndDate(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2025, 7, 4, 20, 0, 0, 0, time.UTC)

	start, end := startAndEndDate("2025-07-04T08:00", "2025-07-04T12:30", loc, now)
	assert.Equal(t, "2025-07-04 12:00:00", start)
	assert.Equal(t, "2025-07-04 16:30:00", end)

	start, end = startAndEndDate("", "", loc, now)
	assert.Equal(t, "2025-07-04 12:00:00", start)
	assert.Equal(t, "2025-07-04 20:00:00", end)

	start, end = startAndEndDate("yesterday", "2025-07-04T12:30", nil, now)
	assert.Equal(t, "2025-07-04 12:00:00", start)
	assert.Equal(t, "2025-07-04 12:30:00", end)
}

func TestStartAndEndDateToTime(t *testing.T) {
	start, end, err := StartAndEndDateToTime("2025-07-04 12:00:00", "2025-07-04 16:30:00")
	require.NoError(t, err)
	assert.Equal(t, 4*time.Hour+30*time.Minute, end.Sub(start))

	_, _, err = StartAndEndDateToTime("bad", "2025-07-04 16:30:00")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, logrus.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel(""))
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slm.log")
	logger, closer, err := NewLogger("info", path)
	require.NoError(t, err)
	logger.Info("bright day")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"bright day"`)
}

func TestConnectSqliteRunsMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	db, err := ConnectSqlite(path)
	require.NoError(t, err)

	_, err = db.Exec("INSERT INTO sunlight (job_id, lux, white, raw_count, gain, integration_ms, classification) VALUES (?, ?, ?, ?, ?, ?, ?)",
		"job", 12.5, 14.0, 217, "1x", 100, "GOOD")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = ConnectSqlite(path)
	require.NoError(t, err)
	defer db.Close()

	var rows, migrations int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sunlight").Scan(&rows))
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&migrations))
	assert.Equal(t, 1, rows)
	assert.Equal(t, 2, migrations)
}

func TestEnsureCertificate(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")

	require.NoError(t, EnsureCertificate(certPath, keyPath, "localhost", "127.0.0.1"))
	valid, err := certificateValid(certPath, keyPath, time.Now())
	require.NoError(t, err)
	assert.True(t, valid)

	first, err := os.ReadFile(certPath)
	require.NoError(t, err)
	require.NoError(t, EnsureCertificate(certPath, keyPath))
	second, err := os.ReadFile(certPath)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	valid, err = certificateValid(certPath, keyPath, time.Now().Add(2*CertificateLifetime))
	require.NoError(t, err)
	assert.False(t, valid)
}
