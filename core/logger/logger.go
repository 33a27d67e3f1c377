/*Package logger carries a request scoped logrus logger through contexts.

Every incoming HTTP request gets a logger with a unique request ID. When
the request enqueues a task, the logger travels with the task through the
database, so that log statements from the asynchronous pipeline can be
correlated with the request that caused them.
*/
package logger

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	fieldRequestID = "requestID"
	fieldIdentity  = "identity"
)

type contextKeyType struct{}

var contextKey = &contextKeyType{}

// loggerData is the serializable part of a context logger.
type loggerData struct {
	RequestID string `json:"requestID"`
	Identity  string `json:"identity"`
}

func (d loggerData) entry() *logrus.Entry {
	rlog := logrus.WithField(fieldRequestID, d.RequestID)
	if len(d.Identity) > 0 {
		rlog = rlog.WithField(fieldIdentity, d.Identity)
	}
	return rlog
}

// InitLogger sets up the time formatter and the log level for all log
// statements of the service.
func InitLogger(logLevel logrus.Level) {
	formatter := new(logrus.TextFormatter)
	formatter.TimestampFormat = "2006-01-02 15:04:05"
	formatter.FullTimestamp = true
	logrus.SetFormatter(formatter)
	logrus.SetLevel(logLevel)
}

// Default returns a logger without a request ID.
func Default() *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger())
}

// AddRequestID installs a middleware which adds a logger with a new
// request ID to every request that does not have one yet.
func AddRequestID(router *mux.Router) {
	router.Use(func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, _ := ContextWithLogger(r.Context())
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	})
}

// ContextWithLogger returns a context carrying a logger with a new request
// ID. A context that already carries a logger is returned unchanged.
func ContextWithLogger(ctx context.Context) (context.Context, *logrus.Entry) {
	if ctx == nil {
		ctx = context.Background()
	} else if rlog := loggerFromContext(ctx); rlog != nil {
		return ctx, rlog
	}
	id, _ := uuid.NewUUID()
	rlog := loggerData{RequestID: id.String()}.entry()
	return context.WithValue(ctx, contextKey, rlog), rlog
}

// ContextWithLoggerIdentity returns a context carrying a logger with the
// given identity added to it.
func ContextWithLoggerIdentity(ctx context.Context, identity string) (context.Context, *logrus.Entry) {
	ctx, rlog := ContextWithLogger(ctx)
	rlog = rlog.WithField(fieldIdentity, identity)
	return context.WithValue(ctx, contextKey, rlog), rlog
}

// ContextWithLoggerFromData returns a context carrying a logger restored
// from data as written by SerializeLoggerContext. If the data is invalid,
// the context gets a logger with a new request ID instead. A context that
// already carries a logger is returned unchanged.
func ContextWithLoggerFromData(ctx context.Context, data []byte) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if rlog := loggerFromContext(ctx); rlog != nil {
		return ctx
	}

	var d loggerData
	if err := json.Unmarshal(data, &d); err != nil || len(d.RequestID) == 0 {
		ctx, _ = ContextWithLogger(ctx)
		return ctx
	}
	return context.WithValue(ctx, contextKey, d.entry())
}

// FromContext returns the logger carried by the context, or the default
// logger if the context has none.
func FromContext(ctx context.Context) *logrus.Entry {
	if ctx != nil {
		if rlog := loggerFromContext(ctx); rlog != nil {
			return rlog
		}
	}
	return Default()
}

// SerializeLoggerContext returns a json representation of the context's
// logger, suitable for storing alongside a task in the database.
func SerializeLoggerContext(ctx context.Context) []byte {
	d := dataFromContext(ctx)
	if len(d.RequestID) == 0 {
		return []byte("{}")
	}
	res, err := json.Marshal(d)
	if err != nil {
		return []byte("{}")
	}
	return res
}

func loggerFromContext(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return nil
	}
	rlog, ok := ctx.Value(contextKey).(*logrus.Entry)
	if !ok {
		return nil
	}
	return rlog
}

func dataFromContext(ctx context.Context) loggerData {
	var d loggerData
	rlog := loggerFromContext(ctx)
	if rlog == nil {
		return d
	}
	if s, ok := rlog.Data[fieldRequestID].(string); ok {
		d.RequestID = s
	}
	if s, ok := rlog.Data[fieldIdentity].(string); ok {
		d.Identity = s
	}
	return d
}
