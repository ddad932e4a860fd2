package catalog

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/impact-simulator/internal/logging"
)

// leveledLogger adapts logging.Logger to retryablehttp.LeveledLogger so retry
// attempts show up in the service log.
type leveledLogger struct {
	log logging.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error(context.Background(), msg, fields(keysAndValues)...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info(context.Background(), msg, fields(keysAndValues)...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug(context.Background(), msg, fields(keysAndValues)...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn(context.Background(), msg, fields(keysAndValues)...)
}

func fields(kv []interface{}) []logging.Field {
	out := make([]logging.Field, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 >= len(kv) {
			out = append(out, logging.Any("extra", key))
			break
		}
		value := kv[i+1]
		// retryablehttp logs the request URL, which carries the API key.
		if key == "url" {
			value = "<redacted>"
		}
		out = append(out, logging.Any(key, value))
	}
	return out
}
