package server

import (
	"encoding/json"
	"net/http"
)

// Problem types returned by the API as RFC 7807 documents.
const (
	ProblemUnknownRobot       = "https://amrwatch.dev/problems/unknown-robot"
	ProblemHistoryDisabled    = "https://amrwatch.dev/problems/history-disabled"
	ProblemHistoryUnavailable = "https://amrwatch.dev/problems/history-unavailable"
	ProblemBadQuery           = "https://amrwatch.dev/problems/bad-query"
	ProblemStatesDisabled     = "https://amrwatch.dev/problems/states-disabled"
)

// Problem is an RFC 7807 Problem Details body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// writeProblem answers r with a problem document. The title is the status
// text and the instance is the request path.
func writeProblem(w http.ResponseWriter, r *http.Request, status int, typ, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     typ,
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	})
}

func unknownRobot(w http.ResponseWriter, r *http.Request, name string) {
	writeProblem(w, r, http.StatusNotFound, ProblemUnknownRobot, "robot "+name+" is not monitored")
}

func historyDisabled(w http.ResponseWriter, r *http.Request) {
	writeProblem(w, r, http.StatusNotFound, ProblemHistoryDisabled,
		"event history is disabled; set store.path to enable it")
}

func historyUnavailable(w http.ResponseWriter, r *http.Request) {
	writeProblem(w, r, http.StatusInternalServerError, ProblemHistoryUnavailable,
		"failed to read event history")
}

func badQuery(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, http.StatusBadRequest, ProblemBadQuery, detail)
}
