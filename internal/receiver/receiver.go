// Package receiver accepts survey responses from collection clients over
// plain HTTP JSON and OTLP (HTTP and gRPC) and stores them after
// normalization.
package receiver

import (
	"context"
	"fmt"

	"github.com/nixlim/fieldwatch/internal/config"
)

// Receiver runs the gRPC and HTTP receivers together.
type Receiver struct {
	grpc *GRPCReceiver
	http *HTTPReceiver
}

// ReceiverOption configures a Receiver.
type ReceiverOption func(*options)

type options struct {
	logger Logger
}

// WithLogger sets a debug logger for every accepted and rejected response.
func WithLogger(l Logger) ReceiverOption {
	return func(o *options) { o.logger = l }
}

// New creates both receivers sharing one Ingester around sink.
func New(cfg config.ReceiverConfig, sink ResponseSink, opts ...ReceiverOption) *Receiver {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	in := NewIngester(sink, o.logger)
	return &Receiver{
		grpc: NewGRPCReceiver(cfg, in),
		http: NewHTTPReceiver(cfg, in),
	}
}

// Start starts both receivers. If the HTTP receiver fails to bind, the
// already started gRPC receiver is stopped.
func (r *Receiver) Start(ctx context.Context) error {
	if err := r.grpc.Start(ctx); err != nil {
		return fmt.Errorf("starting gRPC receiver: %w", err)
	}
	if err := r.http.Start(ctx); err != nil {
		r.grpc.Stop()
		return fmt.Errorf("starting HTTP receiver: %w", err)
	}
	return nil
}

// Stop stops both receivers.
func (r *Receiver) Stop() {
	r.http.Stop()
	r.grpc.Stop()
}
