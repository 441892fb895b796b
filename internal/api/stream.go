package api

import (
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"

    "shelterroute/internal/events"
)

const heartbeatEvery = 15 * time.Second

// SolveEventsHandler streams /v1/solves/{id}/events as server-sent events.
// Subscribe before posting the solve with the same solveId; the stream ends
// after solve.completed or solve.failed.
func (s *Server) SolveEventsHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/solves/")
    parts := strings.Split(rest, "/")
    if len(parts) != 2 || parts[0] == "" || parts[1] != "events" {
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
        return
    }
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    if _, ok := s.authenticated(w, r); !ok { return }
    id := parts[0]
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")

    ch := s.Broker.Subscribe(id)
    defer s.Broker.Unsubscribe(id, ch)
    writeHeartbeat(w, id)
    flusher.Flush()

    notify := r.Context().Done()
    for {
        select {
        case <-notify:
            return
        case evt, ok := <-ch:
            if !ok { return }
            writeSSE(w, evt)
            flusher.Flush()
            if evt.Final() { return }
        case <-time.After(heartbeatEvery):
            writeHeartbeat(w, id)
            flusher.Flush()
        }
    }
}

func writeSSE(w http.ResponseWriter, evt events.Event) {
    b, _ := json.Marshal(evt.Data)
    fmt.Fprintf(w, "event: %s\n", evt.Type)
    fmt.Fprintf(w, "data: %s\n\n", b)
}

func writeHeartbeat(w http.ResponseWriter, id string) {
    fmt.Fprintf(w, "event: heartbeat\n")
    fmt.Fprintf(w, "data: {\"solveId\":%q,\"ts\":%q}\n\n", id, time.Now().UTC().Format(time.RFC3339))
}
