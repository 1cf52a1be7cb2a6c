package ports

import "context"

// Logger is the logging interface shared by the tracking store, the ingest
// pipeline, and the adapters. Fields are an optional structured payload;
// implementations decide the sink and the line format.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	// Error logs err alongside a short description of the operation that failed.
	Error(ctx context.Context, err error, msg string, fields ...map[string]interface{})
}
