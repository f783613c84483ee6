package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/loykin/rtmon/internal/history"
)

// Options configure the sink. Username enables basic auth.
type Options struct {
	BaseURL  string
	Index    string
	Username string
	Password string
	Timeout  time.Duration
}

// Sink indexes events in OpenSearch (or Elasticsearch) over its REST API.
// Each event is PUT under its own id, so a redelivered event overwrites
// itself instead of duplicating.
type Sink struct {
	client *http.Client
	opts   Options
}

func New(baseURL, index string) *Sink {
	return NewWithOptions(Options{BaseURL: baseURL, Index: index})
}

func NewWithOptions(o Options) *Sink {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	return &Sink{client: &http.Client{Timeout: o.Timeout}, opts: o}
}

// document is the flat shape stored in the index; dashboards key on
// @timestamp.
type document struct {
	Timestamp time.Time `json:"@timestamp"`
	EventID   string    `json:"event_id"`
	Event     string    `json:"event"`
	PID       int32     `json:"pid"`
	CMs       int32     `json:"c_ms"`
	TMs       int32     `json:"t_ms"`
	Periods   uint64    `json:"periods"`
	Overruns  uint64    `json:"overruns"`
	Reason    string    `json:"reason,omitempty"`
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	body, err := json.Marshal(document{
		Timestamp: e.OccurredAt,
		EventID:   e.ID,
		Event:     string(e.Type),
		PID:       e.Task.PID,
		CMs:       e.Task.C,
		TMs:       e.Task.T,
		Periods:   e.Task.Periods,
		Overruns:  e.Task.Overruns,
		Reason:    e.Task.Reason,
	})
	if err != nil {
		return err
	}
	u := fmt.Sprintf("%s/%s/_doc/%s", s.opts.BaseURL, s.opts.Index, e.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.opts.Username != "" {
		req.SetBasicAuth(s.opts.Username, s.opts.Password)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("opensearch index %s: status %d: %s", s.opts.Index, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
