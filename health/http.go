package health

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// Response is the JSON body served by DetailedHandler.
type Response struct {
	Status    Status                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Checks    map[string]CheckResponse `json:"checks,omitempty"`
}

// CheckResponse is one Result as served over HTTP.
type CheckResponse struct {
	Status   Status         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Duration string         `json:"duration,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func newResponse(results map[string]Result) Response {
	resp := Response{
		Status:    Overall(results),
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Checks:    make(map[string]CheckResponse, len(results)),
	}
	for name, r := range results {
		cr := CheckResponse{
			Status:   r.Status,
			Message:  r.Message,
			Duration: r.Duration.String(),
			Details:  r.Details,
		}
		if r.Error != nil {
			cr.Error = r.Error.Error()
		}
		resp.Checks[name] = cr
	}
	return resp
}

// httpStatus maps health onto a response code. Only unhealthy is an outage.
func httpStatus(s Status) int {
	if s >= StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// LivenessHandler answers 200 OK while the process can serve HTTP.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, "OK")
	}
}

// ReadinessHandler runs every check and answers OK, DEGRADED or UNHEALTHY.
// Degraded is still ready.
func ReadinessHandler(agg *Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := Overall(agg.CheckAll(r.Context()))
		body := "OK"
		if status != StatusHealthy {
			body = strings.ToUpper(status.String())
		}
		writeText(w, httpStatus(status), body)
	}
}

// DetailedHandler serves every result as JSON.
func DetailedHandler(agg *Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := newResponse(agg.CheckAll(r.Context()))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpStatus(resp.Status))
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// RegisterHandlers mounts /healthz, /readyz and /health on mux.
func RegisterHandlers(mux *http.ServeMux, agg *Aggregator) {
	mux.Handle("GET /healthz", LivenessHandler())
	mux.Handle("GET /readyz", ReadinessHandler(agg))
	mux.Handle("GET /health", DetailedHandler(agg))
}
