package tracing

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"bookingsvc/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-xray-sdk-go/instrumentation/awsv2"
	"github.com/aws/aws-xray-sdk-go/strategy/ctxmissing"
	"github.com/aws/aws-xray-sdk-go/xray"
)

var (
	enabled     atomic.Bool
	segmentName atomic.Value
)

const defaultSegmentName = "booking-api"

// Configure sets up the X-Ray recorder. With tracing disabled every helper in
// this package is a no-op.
func Configure(cfg config.TracingConfig, version string) error {
	name := cfg.ServiceName
	if name == "" {
		name = defaultSegmentName
	}
	segmentName.Store(name)

	if !cfg.Enabled {
		enabled.Store(false)
		return nil
	}

	if err := xray.Configure(xray.Config{
		DaemonAddr:             cfg.DaemonAddr,
		ServiceVersion:         version,
		ContextMissingStrategy: ctxmissing.NewDefaultLogErrorStrategy(),
	}); err != nil {
		return fmt.Errorf("configure xray: %w", err)
	}
	enabled.Store(true)
	return nil
}

// ServiceName is the segment name recorded for incoming requests.
func ServiceName() string {
	if name, ok := segmentName.Load().(string); ok {
		return name
	}
	return defaultSegmentName
}

// Subsegment opens an X-Ray subsegment and returns the function that closes it.
func Subsegment(ctx context.Context, name string) (context.Context, func(error)) {
	if !enabled.Load() {
		return ctx, func(error) {}
	}
	ctx, seg := xray.BeginSubsegment(ctx, name)
	if seg == nil {
		return ctx, func(error) {}
	}
	return ctx, func(err error) { seg.Close(err) }
}

// Middleware opens one segment per HTTP request, named after the configured service.
func Middleware(next http.Handler) http.Handler {
	if !enabled.Load() {
		return next
	}
	return xray.Handler(xray.NewFixedSegmentNamer(ServiceName()), next)
}

// InstrumentAWS records AWS SDK calls made with cfg as subsegments.
func InstrumentAWS(cfg *aws.Config) {
	if !enabled.Load() {
		return
	}
	awsv2.AWSV2Instrumentor(&cfg.APIOptions)
}
