package receiver

import (
	"context"
	"fmt"

	"github.com/nixlim/fieldwatch/internal/ingest"
	"github.com/nixlim/fieldwatch/internal/logging"
	"github.com/nixlim/fieldwatch/internal/metrics"
	"github.com/nixlim/fieldwatch/internal/survey"
)

// Transport labels used in metrics and debug logs.
const (
	TransportHTTP     = "http"
	TransportOTLPHTTP = "otlp_http"
	TransportOTLPGRPC = "otlp_grpc"
	TransportCLI      = "cli"
)

// ResponseSink receives normalized responses. state.Store satisfies it.
type ResponseSink interface {
	PutResponses(ctx context.Context, responses []survey.Response) (int, error)
}

// IngestResult summarizes one ingested batch.
type IngestResult struct {
	Received    int                 `json:"received"`
	Accepted    int                 `json:"accepted"`
	New         int                 `json:"new"`
	Rejected    int                 `json:"rejected"`
	Diagnostics []ingest.Diagnostic `json:"-"`
}

// Ingester normalizes raw batches and hands them to a sink. It is shared by
// every transport.
type Ingester struct {
	sink   ResponseSink
	logger Logger
}

// NewIngester creates an Ingester. A nil logger disables debug logging.
func NewIngester(sink ResponseSink, logger Logger) *Ingester {
	if logger == nil {
		logger = NopLogger{}
	}
	return &Ingester{sink: sink, logger: logger}
}

// Ingest normalizes raws and stores the surviving responses. Normalization
// problems are reported in the result, never as an error; only a store
// failure is returned.
func (in *Ingester) Ingest(ctx context.Context, transport string, raws []ingest.RawResponse) (IngestResult, error) {
	responses, diags := ingest.Normalize(raws)

	res := IngestResult{
		Received:    len(raws),
		Accepted:    len(responses),
		Rejected:    len(raws) - len(responses),
		Diagnostics: diags,
	}
	for _, d := range diags {
		in.logger.LogRejected(transport, d)
	}
	if res.Rejected > 0 {
		metrics.ResponsesRejected.WithLabelValues(transport).Add(float64(res.Rejected))
	}
	if len(responses) == 0 {
		return res, nil
	}

	added, err := in.sink.PutResponses(ctx, responses)
	if err != nil {
		return res, fmt.Errorf("storing responses: %w", err)
	}
	res.New = added

	metrics.ResponsesIngested.WithLabelValues(transport).Add(float64(len(responses)))
	for _, r := range responses {
		in.logger.LogResponse(transport, r)
	}
	logging.Debug().Str("transport", transport).Int("accepted", res.Accepted).
		Int("new", res.New).Int("rejected", res.Rejected).Msg("responses ingested")
	return res, nil
}
