package api

import (
	"encoding/json"
	"net/http"
)

// Problem types for failures clients are expected to branch on.
const (
	ProblemEmptyInput = "urn:shelterroute:empty-input"
	ProblemNoSolution = "urn:shelterroute:no-solution"
	ProblemValidation = "urn:shelterroute:validation"
	ProblemNotFound   = "urn:shelterroute:not-found"
	ProblemAmbiguous  = "urn:shelterroute:ambiguous-shelter"
	ProblemRateLimit  = "urn:shelterroute:rate-limited"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string   `json:"type"`
	Title    string   `json:"title"`
	Status   int      `json:"status"`
	Detail   string   `json:"detail,omitempty"`
	Instance string   `json:"instance,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// writeJSON encodes v before committing the status, so a value that cannot
// be encoded becomes a 500 problem instead of an empty success.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Encode response failed", err.Error(), "")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeTypedProblem(w, Problem{Type: "about:blank", Title: title, Status: status, Detail: detail, Instance: instance})
}

func writeTypedProblem(w http.ResponseWriter, p Problem) {
	if p.Type == "" {
		p.Type = "about:blank"
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
