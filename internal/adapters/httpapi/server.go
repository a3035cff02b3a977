package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/conference-site/schedule-api/internal/app/rsvps"
	"github.com/conference-site/schedule-api/internal/app/sessions"
	"github.com/conference-site/schedule-api/internal/app/users"
	"github.com/conference-site/schedule-api/internal/domain"
	"github.com/conference-site/schedule-api/internal/platform/logger"
	"github.com/conference-site/schedule-api/internal/ports/out/clock"
	"github.com/conference-site/schedule-api/internal/ports/out/idempotency"
)

// Server implements the HTTP handlers on top of the application services.
type Server struct {
	Users    *users.Service
	Sessions *sessions.Service
	RSVPs    *rsvps.Service
	// Idem is optional; without it Idempotency-Key headers are ignored.
	Idem idempotency.Store

	clock    clock.Clock
	log      *slog.Logger
	validate *validator.Validate
}

func NewServer(usersSvc *users.Service, sessionsSvc *sessions.Service, rsvpSvc *rsvps.Service, idem idempotency.Store, clk clock.Clock, log *slog.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Server{
		Users:    usersSvc,
		Sessions: sessionsSvc,
		RSVPs:    rsvpSvc,
		Idem:     idem,
		clock:    clk,
		log:      log,
		validate: v,
	}
}

func (s *Server) CreateMyUser(w http.ResponseWriter, r *http.Request) {
	sub, ok := subjectOrUnauthorized(w, r)
	if !ok {
		return
	}
	var body CreateMyUserRequest
	if !s.decodeBody(w, r, &body) {
		return
	}

	u, err := s.Users.CreateMyUser(r.Context(), sub, users.CreateMyUserInput{
		DisplayName: body.DisplayName,
		Email:       string(body.Email),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, UserResponse{User: userFromDomain(u)})
}

func (s *Server) GetMyUser(w http.ResponseWriter, r *http.Request) {
	sub, ok := subjectOrUnauthorized(w, r)
	if !ok {
		return
	}
	u, err := s.Users.GetMyUser(r.Context(), sub)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{User: userFromDomain(u)})
}

// DeleteMyUser releases every RSVP the caller holds and removes the profile.
func (s *Server) DeleteMyUser(w http.ResponseWriter, r *http.Request) {
	sub, ok := subjectOrUnauthorized(w, r)
	if !ok {
		return
	}
	if err := s.Users.DeleteMyUser(r.Context(), sub); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ListMyRSVPs(w http.ResponseWriter, r *http.Request) {
	me, ok := s.caller(w, r)
	if !ok {
		return
	}
	recs, err := s.RSVPs.GetForUser(r.Context(), me.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]RSVP, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rsvpFromDomain(rec))
	}
	writeJSON(w, http.StatusOK, MyRSVPsResponse{RSVPs: out})
}

func (s *Server) ListSchedule(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Sessions.ListSchedule(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]ScheduleEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, ScheduleEntry{Session: sessionFromDomain(e.Session), RsvpCount: e.RSVPCount})
	}
	writeJSON(w, http.StatusOK, ScheduleResponse{Sessions: out})
}

func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	var body CreateSessionRequest
	if !s.decodeBody(w, r, &body) {
		return
	}
	sess, err := s.Sessions.CreateSession(r.Context(), createSessionInputFromRequest(body))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{Session: sessionFromDomain(sess)})
}

func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	sess, err := s.Sessions.GetSession(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{Session: sessionFromDomain(sess)})
}

func (s *Server) UpdateSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	var body UpdateSessionRequest
	if !s.decodeBody(w, r, &body) {
		return
	}
	res, err := s.Sessions.UpdateSession(r.Context(), id, updateSessionInputFromRequest(body))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	promoted := make([]string, 0, len(res.Promoted))
	for _, u := range res.Promoted {
		promoted = append(promoted, string(u))
	}
	writeJSON(w, http.StatusOK, UpdateSessionResponse{
		Session:         sessionFromDomain(res.Session),
		PromotedUserIds: promoted,
	})
}

// ListSessionRSVPs lists a session's attendees in waitlist order.
func (s *Server) ListSessionRSVPs(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	// GetForSession returns an empty list for unknown sessions; 404 here instead.
	if _, err := s.Sessions.GetSession(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	attendees, err := s.RSVPs.GetForSession(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]Attendee, 0, len(attendees))
	for _, a := range attendees {
		out = append(out, attendeeFromDomain(a))
	}
	writeJSON(w, http.StatusOK, AttendeesResponse{Attendees: out})
}

func (s *Server) Rsvp(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	me, ok := s.caller(w, r)
	if !ok {
		return
	}
	rec, err := s.RSVPs.Rsvp(r.Context(), id, me.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RSVPResponse{RSVP: rsvpFromDomain(rec)})
}

// Unrsvp returns the removed record, or 204 when the caller held none.
func (s *Server) Unrsvp(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	me, ok := s.caller(w, r)
	if !ok {
		return
	}
	removed, err := s.RSVPs.Unrsvp(r.Context(), id, me.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if removed == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, UnrsvpResponse{Removed: rsvpFromDomain(*removed)})
}

func (s *Server) ToggleRSVP(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	me, ok := s.caller(w, r)
	if !ok {
		return
	}

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" || s.Idem == nil {
		res, err := s.RSVPs.Toggle(r.Context(), id, me.ID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toggleResponseFromResult(res))
		return
	}

	s.withIdempotency(w, r, idempotency.Fingerprint{
		Key:     idempotency.Key(key),
		Subject: me.Subject,
		Method:  http.MethodPost,
		Route:   "/sessions/{sessionId}/rsvp/toggle",
	}, hashParts(string(id)), func() (int, any, error) {
		res, err := s.RSVPs.Toggle(r.Context(), id, me.ID)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, toggleResponseFromResult(res), nil
	})
}

func (s *Server) CountsBySession(w http.ResponseWriter, r *http.Request) {
	counts, err := s.RSVPs.CountsBySession(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make(map[string]int, len(counts))
	for id, n := range counts {
		out[string(id)] = n
	}
	writeJSON(w, http.StatusOK, CountsResponse{Counts: out})
}

func subjectOrUnauthorized(w http.ResponseWriter, r *http.Request) (domain.SubjectID, bool) {
	sub, ok := SubjectFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing subject", nil)
		return "", false
	}
	return domain.SubjectID(sub), true
}

// caller resolves the authenticated subject to its user profile.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	sub, ok := subjectOrUnauthorized(w, r)
	if !ok {
		return domain.User{}, false
	}
	u, err := s.Users.GetMyUser(r.Context(), sub)
	if err != nil {
		if ue := (*users.Error)(nil); errors.As(err, &ue) && ue.Code == "USER_NOT_PROVISIONED" {
			writeError(w, r, http.StatusUnauthorized, ue.Code, ue.Message, nil)
			return domain.User{}, false
		}
		s.writeServiceError(w, r, err)
		return domain.User{}, false
	}
	return u, true
}

func sessionIDParam(w http.ResponseWriter, r *http.Request) (domain.SessionID, bool) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "sessionId", chi.URLParam(r, "sessionId"), &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid sessionId", map[string]any{"sessionId": "must be a UUID"})
		return "", false
	}
	return domain.SessionID(id.String()), true
}

// decodeBody decodes a JSON body into dst and runs struct validation.
// It writes a 422 and returns false on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.Body == http.NoBody {
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "missing request body", nil)
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid JSON body", map[string]any{"body": err.Error()})
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var ves validator.ValidationErrors
		if errors.As(err, &ves) {
			details := make(map[string]any, len(ves))
			for _, fe := range ves {
				details[fe.Field()] = fmt.Sprintf("failed %q", fe.Tag())
			}
			writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "request validation failed", details)
			return false
		}
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		return false
	}
	return true
}
