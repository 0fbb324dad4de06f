package receiver

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/nixlim/fieldwatch/internal/config"
	"github.com/nixlim/fieldwatch/internal/ingest"
	"github.com/nixlim/fieldwatch/internal/logging"
)

const maxBodyBytes = 8 << 20

// HTTPReceiver serves the JSON response endpoint and OTLP/HTTP logs.
type HTTPReceiver struct {
	cfg      config.ReceiverConfig
	ingester *Ingester

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// NewHTTPReceiver creates an HTTP receiver. Call Start to begin serving.
func NewHTTPReceiver(cfg config.ReceiverConfig, ingester *Ingester) *HTTPReceiver {
	return &HTTPReceiver{cfg: cfg, ingester: ingester}
}

// Handler returns the receiver's routes.
func (r *HTTPReceiver) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/responses", r.handleResponses)
	mux.HandleFunc("/v1/logs", r.handleLogs)
	return mux
}

// Start binds the configured port and serves in the background.
func (r *HTTPReceiver) Start(ctx context.Context) error {
	lis, err := listen(r.cfg.Bind, r.cfg.HTTPPort)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      r.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	r.mu.Lock()
	r.listener = lis
	r.server = srv
	r.mu.Unlock()

	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("HTTP receiver stopped")
		}
	}()
	logging.Info().Str("addr", lis.Addr().String()).Msg("HTTP receiver listening")
	return nil
}

// Addr returns the bound address, or nil before Start.
func (r *HTTPReceiver) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Stop shuts the server down, waiting up to five seconds for requests.
func (r *HTTPReceiver) Stop() {
	r.mu.Lock()
	srv := r.server
	r.server = nil
	r.mu.Unlock()
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

type diagnosticBody struct {
	ResponseID string `json:"responseId,omitempty"`
	Index      int    `json:"index"`
	Field      string `json:"field"`
	Skipped    bool   `json:"skipped"`
	Error      string `json:"error"`
}

type ingestBody struct {
	IngestResult
	Diagnostics []diagnosticBody `json:"diagnostics"`
}

// handleResponses accepts a JSON object or array of raw responses.
func (r *HTTPReceiver) handleResponses(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	raws, err := ingest.DecodeBatch(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := r.ingester.Ingest(req.Context(), TransportHTTP, raws)
	if err != nil {
		logging.Error().Err(err).Msg("ingesting responses")
		http.Error(w, "failed to store responses", http.StatusServiceUnavailable)
		return
	}

	out := ingestBody{IngestResult: res, Diagnostics: make([]diagnosticBody, 0, len(res.Diagnostics))}
	for _, d := range res.Diagnostics {
		out.Diagnostics = append(out.Diagnostics, diagnosticBody{
			ResponseID: d.ResponseID, Index: d.Index, Field: d.Field, Skipped: d.Skipped, Error: d.Err.Error(),
		})
	}

	code := http.StatusAccepted
	if res.Accepted == 0 && res.Received > 0 {
		code = http.StatusUnprocessableEntity
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(out)
}

// handleLogs accepts OTLP log exports in protobuf or JSON encoding.
func (r *HTTPReceiver) handleLogs(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	isJSON := strings.HasPrefix(req.Header.Get("Content-Type"), "application/json")
	var export collogspb.ExportLogsServiceRequest
	if isJSON {
		err = protojson.Unmarshal(body, &export)
	} else {
		err = proto.Unmarshal(body, &export)
	}
	if err != nil {
		http.Error(w, "malformed OTLP payload", http.StatusBadRequest)
		return
	}

	resp := &collogspb.ExportLogsServiceResponse{}
	if raws := rawFromLogs(&export); len(raws) > 0 {
		res, err := r.ingester.Ingest(req.Context(), TransportOTLPHTTP, raws)
		if err != nil {
			logging.Error().Err(err).Msg("ingesting OTLP responses")
			http.Error(w, "failed to store responses", http.StatusServiceUnavailable)
			return
		}
		if res.Rejected > 0 {
			resp.PartialSuccess = &collogspb.ExportLogsPartialSuccess{
				RejectedLogRecords: int64(res.Rejected),
				ErrorMessage:       rejectionSummary(res),
			}
		}
	}

	var out []byte
	if isJSON {
		out, err = protojson.Marshal(resp)
		w.Header().Set("Content-Type", "application/json")
	} else {
		out, err = proto.Marshal(resp)
		w.Header().Set("Content-Type", "application/x-protobuf")
	}
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}
