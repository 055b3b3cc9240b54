package logging

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Leveled adapts a zerolog.Logger to the key/value logger interface used by
// retryablehttp.
type Leveled struct {
	Logger zerolog.Logger
}

func (l Leveled) Error(msg string, keysAndValues ...interface{}) {
	withFields(l.Logger.Error(), keysAndValues).Msg(msg)
}

func (l Leveled) Warn(msg string, keysAndValues ...interface{}) {
	withFields(l.Logger.Warn(), keysAndValues).Msg(msg)
}

func (l Leveled) Info(msg string, keysAndValues ...interface{}) {
	// retryablehttp logs every request at info; keep that out of the console.
	withFields(l.Logger.Debug(), keysAndValues).Msg(msg)
}

func (l Leveled) Debug(msg string, keysAndValues ...interface{}) {
	withFields(l.Logger.Debug(), keysAndValues).Msg(msg)
}

func withFields(e *zerolog.Event, kv []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		e = e.Interface(key, kv[i+1])
	}
	return e
}
