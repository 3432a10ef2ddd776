package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shoestore/internal/idempotency"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayHeader         = "X-Idempotent-Replay"
)

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response when a request repeats an
// Idempotency-Key. Requests without the header run normally. Server errors
// release the key so the client can retry.
func Idempotency(store idempotency.Store, ttl time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if store == nil || key == "" {
			c.Next()
			return
		}
		if len(key) > 255 {
			abort(c, http.StatusBadRequest, "VALIDATION_ERROR", "idempotency key is too long")
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			abort(c, http.StatusBadRequest, "VALIDATION_ERROR", "unable to read request body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		caller := "anonymous"
		if p, ok := PrincipalFrom(c); ok {
			caller = p.UserID.Hex()
		}
		scoped := idempotency.ScopedKey(key, caller)
		fingerprint := idempotency.Fingerprint(c.Request.Method, c.Request.URL.Path, caller, body)
		ctx := c.Request.Context()

		reservation, err := store.Reserve(ctx, scoped, fingerprint, time.Now().UTC(), ttl)
		switch {
		case errors.Is(err, idempotency.ErrFingerprintMismatch):
			abort(c, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED", "idempotency key was used for a different request")
			return
		case err != nil:
			logger.Error("idempotency reserve failed", zap.Error(err))
			abort(c, http.StatusInternalServerError, "INTERNAL", "unable to process idempotency key")
			return
		}

		switch reservation.State {
		case idempotency.ReservationCompleted:
			replay(c, reservation.Record)
			return
		case idempotency.ReservationPending:
			abort(c, http.StatusConflict, "IDEMPOTENCY_IN_PROGRESS", "a request with this idempotency key is still being processed")
			return
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Next()

		status := recorder.Status()
		if status >= http.StatusInternalServerError {
			if err := store.Release(ctx, scoped); err != nil {
				logger.Warn("idempotency release failed", zap.Error(err))
			}
			return
		}
		resp := idempotency.Response{
			Status:  status,
			Headers: recorder.Header().Clone(),
			Body:    recorder.body.Bytes(),
		}
		if err := store.SaveResponse(ctx, scoped, fingerprint, resp, time.Now().UTC(), ttl); err != nil {
			logger.Error("idempotency save failed", zap.Error(err))
			if err := store.Release(ctx, scoped); err != nil {
				logger.Warn("idempotency release failed", zap.Error(err))
			}
		}
	}
}

func replay(c *gin.Context, record idempotency.Record) {
	for name, values := range record.Headers {
		for _, v := range values {
			c.Writer.Header().Add(name, v)
		}
	}
	c.Header(ReplayHeader, "true")
	contentType := c.Writer.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "application/json; charset=utf-8"
	}
	c.Data(record.ResponseStatus, contentType, record.Body)
	c.Abort()
}
