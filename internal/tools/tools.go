package tools

import (
	"net"
	"net/http"
	"time"
)

const (
	layoutInput = "2006-01-02T15:04"
	layoutDB    = "2006-01-02 15:04:05"

	// DefaultRange is the dashboard window when no dates are given.
	DefaultRange = 8 * time.Hour
)

// Prevent out-of-network requests to dashboard endpoints
func CheckInNetwork(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		parsedIP := net.ParseIP(ip)
		if parsedIP == nil {
			http.Error(w, "Invalid IP address", http.StatusBadRequest)
			return
		}
		if !isLocalAddress(parsedIP) {
			l.Warnf("Rejected request from %s to %s", ip, r.URL.Path)
			http.Error(w, "Access denied", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isLocalAddress(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

// Get the start and end dates from the request, format them for comparison
// with the DB. Dates from the form are read in loc; the DB holds UTC.
func ParseStartAndEndDate(r *http.Request, loc *time.Location) (string, string) {
	r.ParseForm()
	return startAndEndDate(r.FormValue("start"), r.FormValue("end"), loc, time.Now())
}

func startAndEndDate(startDate, endDate string, loc *time.Location, now time.Time) (string, string) {
	if loc == nil {
		loc = time.UTC
	}
	defaultStart := now.UTC().Add(-DefaultRange).Format(layoutDB)
	defaultEnd := now.UTC().Format(layoutDB)
	if startDate == "" || endDate == "" {
		return defaultStart, defaultEnd
	}

	start, err := time.ParseInLocation(layoutInput, startDate, loc)
	if err != nil {
		l.Warnf("Error parsing start date: %v", err)
		startDate = defaultStart
	} else {
		startDate = start.UTC().Format(layoutDB)
	}
	end, err := time.ParseInLocation(layoutInput, endDate, loc)
	if err != nil {
		l.Warnf("Error parsing end date: %v", err)
		endDate = defaultEnd
	} else {
		endDate = end.UTC().Format(layoutDB)
	}
	return startDate, endDate
}

func StartAndEndDateToTime(startDate string, endDate string) (time.Time, time.Time, error) {
	start, err := time.Parse(layoutDB, startDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.Parse(layoutDB, endDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
