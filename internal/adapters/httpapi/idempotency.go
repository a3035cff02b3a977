package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/conference-site/schedule-api/internal/platform/logger/sl"
	"github.com/conference-site/schedule-api/internal/ports/out/idempotency"
)

// withIdempotency replays a stored response for a repeated key and request hash,
// rejects a reused key with a different hash, and otherwise runs fn and stores
// its successful response.
//
// Two concurrent first attempts with the same key both run fn.
func (s *Server) withIdempotency(w http.ResponseWriter, r *http.Request, fp idempotency.Fingerprint, bodyHash string, fn func() (int, any, error)) {
	ctx := r.Context()

	rec, ok, err := s.Idem.Get(ctx, fp)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if ok {
		if rec.BodyHash != bodyHash {
			writeError(w, r, http.StatusConflict, "IDEMPOTENCY_KEY_REUSE", "idempotency key reuse with different payload", nil)
			return
		}
		w.Header().Set("Content-Type", rec.ContentType)
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(rec.StatusCode)
		_, _ = w.Write(rec.Body)
		return
	}

	status, resp, err := fn()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	b, err := json.Marshal(resp)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	b = append(b, '\n')

	if status >= 200 && status < 300 {
		err := s.Idem.Put(ctx, fp, idempotency.Record{
			BodyHash:    bodyHash,
			StatusCode:  status,
			ContentType: "application/json",
			Body:        b,
			CreatedAt:   s.clock.Now().UTC(),
		})
		if err != nil {
			// The state change is committed; the response still goes out.
			s.log.WarnContext(ctx, "idempotency record not stored",
				slog.String("route", fp.Route),
				sl.Err(err),
			)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func hashParts(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}
