// Command routectl solves a routing problem file locally or against a
// running API, printing the result as JSON.
//
//	routectl solve -f problem.yaml
//	routectl watch -f problem.yaml -addr http://localhost:8080
//	routectl import -f shelters.csv -addr http://localhost:8080
//	routectl token -tenant t1 -role dispatcher
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"shelterroute/internal/auth"
	"shelterroute/internal/config"
	"shelterroute/internal/events"
	"shelterroute/internal/integrations"
	"shelterroute/internal/integrations/csvfile"
	"shelterroute/internal/planner"
	"shelterroute/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "solve":
		err = runSolve(ctx, os.Args[2:], os.Stdout)
	case "watch":
		err = runWatch(ctx, os.Args[2:], os.Stdout)
	case "import":
		err = runImport(ctx, os.Args[2:], os.Stdout)
	case "token":
		err = runToken(os.Args[2:], os.Stdout)
	default:
		usage()
	}
	if err != nil {
		logrus.WithError(err).Fatal(os.Args[1])
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: routectl solve|watch|import|token [flags]")
	os.Exit(2)
}

func loadProblem(path string) (problem, error) {
	f, err := os.Open(path)
	if err != nil {
		return problem{}, err
	}
	defer f.Close()
	return readProblem(f)
}

// runSolve solves in-process with the configured solver defaults. Progress
// events go to stderr when -v is set.
func runSolve(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("solve", flag.ExitOnError)
	file := fs.String("f", "problem.yaml", "problem file")
	verbose := fs.Bool("v", false, "log progress events")
	_ = fs.Parse(args)

	p, err := loadProblem(*file)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := cfg.NewLogger()
	log.SetOutput(os.Stderr)

	broker := events.NewBroker()
	pl := planner.New(store.NewMemory(), broker, cfg.Solver, log)
	req := p.request()
	if len(req.ShelterNames) > 0 {
		return fmt.Errorf("shelter_names need the catalog; use watch against a server")
	}
	req.SolveID = uuid.NewString()
	if *verbose {
		ch := broker.Subscribe(req.SolveID)
		defer broker.Unsubscribe(req.SolveID, ch)
		go func() {
			for evt := range ch {
				log.WithFields(logrus.Fields(evt.Data)).Info(evt.Type)
			}
		}()
	}
	resp, err := pl.Solve(ctx, "local", req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// runWatch subscribes to the solve's events over WebSocket, posts the problem
// and prints every event followed by the response.
func runWatch(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	file := fs.String("f", "problem.yaml", "problem file")
	addr := fs.String("addr", "http://localhost:8080", "API base URL")
	tenant := fs.String("tenant", "t_demo", "tenant id")
	token := fs.String("token", "", "bearer token")
	_ = fs.Parse(args)

	p, err := loadProblem(*file)
	if err != nil {
		return err
	}
	req := p.request()
	req.SolveID = uuid.NewString()

	base, err := url.Parse(*addr)
	if err != nil {
		return err
	}
	wsURL := *base
	wsURL.Scheme = strings.Replace(base.Scheme, "http", "ws", 1)
	wsURL.Path = "/v1/ws"
	hdr := authHeader(*tenant, *token)
	c, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), hdr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		return err
	}
	pl, _ := json.Marshal(map[string]string{"solveId": req.SolveID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		return err
	}
	// a pong means the subscribe frame has been handled
	if err := c.WriteJSON(wsMessage{Type: "ping"}); err != nil {
		return err
	}
	for {
		var m wsMessage
		if err := c.ReadJSON(&m); err != nil {
			return err
		}
		if m.Type == "pong" {
			break
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				return
			}
			switch m.Type {
			case "next":
				fmt.Fprintf(out, "%s\n", m.Payload)
			case "complete":
				return
			}
		}
	}()

	body, _ := json.Marshal(req)
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(*addr, "/")+"/v1/solve", bytes.NewReader(body))
	if err != nil {
		return err
	}
	hreq.Header = authHeader(*tenant, *token)
	hreq.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(hreq)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("solve: %s: %s", resp.Status, bytes.TrimSpace(rb))
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, rb, "", "  "); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, pretty.String())
	return err
}

func authHeader(tenant, token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	} else {
		h.Set("X-Tenant-Id", tenant)
	}
	return h
}

// runImport uploads a shelter CSV. With -dry-run the file is only parsed and
// the import result against an empty catalog is printed.
func runImport(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	file := fs.String("f", "shelters.csv", "shelter CSV file")
	addr := fs.String("addr", "http://localhost:8080", "API base URL")
	tenant := fs.String("tenant", "t_demo", "tenant id")
	token := fs.String("token", "", "bearer token")
	dry := fs.Bool("dry-run", false, "parse locally, do not upload")
	_ = fs.Parse(args)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if *dry {
		res, err := integrations.Import(ctx, csvfile.FromFile(*file), store.NewMemory(), *tenant)
		if err != nil {
			return err
		}
		return enc.Encode(res)
	}

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(*addr, "/")+"/v1/shelters", f)
	if err != nil {
		return err
	}
	hreq.Header = authHeader(*tenant, *token)
	hreq.Header.Set("Content-Type", "text/csv; charset=utf-8")
	resp, err := http.DefaultClient.Do(hreq)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("import: %s: %s", resp.Status, bytes.TrimSpace(rb))
	}
	_, err = fmt.Fprintf(out, "%s\n", bytes.TrimSpace(rb))
	return err
}

// runToken signs an HS256 token with AUTH_HMAC_SECRET.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	tenant := fs.String("tenant", "t_demo", "tenant id")
	role := fs.String("role", "dispatcher", "admin, dispatcher or viewer")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	_ = fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	v, err := auth.NewVerifier(auth.ModeHMAC, cfg.Auth.HMACSecret, cfg.Auth.TenantClaim, cfg.Auth.RoleClaim)
	if err != nil {
		return err
	}
	tok, err := v.Sign(auth.Principal{Tenant: *tenant, Role: *role}, jwt.MapClaims{"exp": time.Now().Add(*ttl).Unix()})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, tok)
	return err
}
