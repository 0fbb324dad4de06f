package receiver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"syscall"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nixlim/fieldwatch/internal/config"
	"github.com/nixlim/fieldwatch/internal/logging"
)

// GRPCReceiver accepts OTLP log exports over gRPC and ingests every
// survey.response record.
type GRPCReceiver struct {
	collogspb.UnimplementedLogsServiceServer

	cfg      config.ReceiverConfig
	ingester *Ingester

	mu       sync.Mutex
	listener net.Listener
	server   *grpc.Server
}

// NewGRPCReceiver creates a gRPC receiver. Call Start to begin serving.
func NewGRPCReceiver(cfg config.ReceiverConfig, ingester *Ingester) *GRPCReceiver {
	return &GRPCReceiver{cfg: cfg, ingester: ingester}
}

// Start binds the configured port and serves in the background.
func (r *GRPCReceiver) Start(ctx context.Context) error {
	lis, err := listen(r.cfg.Bind, r.cfg.GRPCPort)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.listener = lis
	r.server = grpc.NewServer()
	collogspb.RegisterLogsServiceServer(r.server, r)
	srv := r.server
	r.mu.Unlock()

	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logging.Error().Err(err).Msg("gRPC receiver stopped")
		}
	}()
	logging.Info().Str("addr", lis.Addr().String()).Msg("OTLP gRPC receiver listening")
	return nil
}

// Addr returns the bound address, or nil before Start.
func (r *GRPCReceiver) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Stop gracefully stops the server.
func (r *GRPCReceiver) Stop() {
	r.mu.Lock()
	srv := r.server
	r.server = nil
	r.mu.Unlock()
	if srv != nil {
		srv.GracefulStop()
	}
}

// Export implements the OTLP LogsService.
func (r *GRPCReceiver) Export(ctx context.Context, req *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	raws := rawFromLogs(req)
	resp := &collogspb.ExportLogsServiceResponse{}
	if len(raws) == 0 {
		return resp, nil
	}

	res, err := r.ingester.Ingest(ctx, TransportOTLPGRPC, raws)
	if err != nil {
		return nil, status.Errorf(codes.Unavailable, "ingesting responses: %v", err)
	}
	if res.Rejected > 0 {
		resp.PartialSuccess = &collogspb.ExportLogsPartialSuccess{
			RejectedLogRecords: int64(res.Rejected),
			ErrorMessage:       rejectionSummary(res),
		}
	}
	return resp, nil
}

// listen binds bind:port, reporting a port conflict in a stable form.
func listen(bind string, port int) (net.Listener, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", bind, port))
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("port %d already in use", port)
		}
		return nil, fmt.Errorf("listening on %s:%d: %w", bind, port, err)
	}
	return lis, nil
}

func rejectionSummary(res IngestResult) string {
	var parts []string
	for _, d := range res.Diagnostics {
		if d.Skipped {
			parts = append(parts, d.Error())
		}
		if len(parts) == 5 {
			break
		}
	}
	return strings.Join(parts, "; ")
}
