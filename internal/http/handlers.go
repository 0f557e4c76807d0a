package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/tripmatch/internal/dispatch"
	"github.com/example/tripmatch/internal/matcher"
	"github.com/example/tripmatch/internal/models"
	"github.com/example/tripmatch/internal/scoring"
)

// Deps are the collaborators of the HTTP API. WS, Idempotency and Ready
// are optional.
type Deps struct {
	Matcher     *matcher.Service
	WS          *dispatch.WSRegistry
	Idempotency *Idempotency
	// Ready reports whether backing services are reachable.
	Ready  func(ctx context.Context) error
	Logger *slog.Logger
}

type Server struct {
	matcher     *matcher.Service
	ws          *dispatch.WSRegistry
	idempotency *Idempotency
	ready       func(ctx context.Context) error
	logger      *slog.Logger
	mux         *mux.Router
}

func NewServer(d Deps) *Server {
	s := &Server{
		matcher:     d.Matcher,
		ws:          d.WS,
		idempotency: d.Idempotency,
		ready:       d.Ready,
		logger:      d.Logger,
		mux:         mux.NewRouter(),
	}
	s.routes()
	s.registerMiddleware()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/trips", s.handleCreateTrip).Methods(http.MethodPost)
	api.HandleFunc("/trips/{id}", s.handleGetTrip).Methods(http.MethodGet)
	api.HandleFunc("/trips/{id}/cancel", s.handleCloseTrip(s.matcher.CancelTrip)).Methods(http.MethodPost)
	api.HandleFunc("/trips/{id}/complete", s.handleCloseTrip(s.matcher.CompleteTrip)).Methods(http.MethodPost)
	api.HandleFunc("/trips/{id}/matches", s.handleTripMatches).Methods(http.MethodGet)
	api.HandleFunc("/trips/{id}/match", s.handleRunMatching).Methods(http.MethodPost)
	api.HandleFunc("/compatibility", s.handleCompatibility).Methods(http.MethodPost)
	api.HandleFunc("/matches/{id}", s.handleGetMatch).Methods(http.MethodGet)
	api.HandleFunc("/matches/{id}/{action:view|contact|accept|decline}", s.handleMatchAction).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}/preferences", s.handleGetPreferences).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/preferences", s.handlePutPreferences).Methods(http.MethodPut)

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods(http.MethodGet)
	s.mux.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
	if s.ws != nil {
		s.mux.HandleFunc("/ws/{user_id}", s.handleWS)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// matchView pairs a stored match with how a client should render it.
type matchView struct {
	Match   *models.TripMatch `json:"match"`
	Display scoring.Display   `json:"display"`
}

func viewsOf(ms []*models.TripMatch, withBreakdown bool) []matchView {
	out := make([]matchView, 0, len(ms))
	for _, m := range ms {
		out = append(out, matchView{Match: m, Display: scoring.NewDisplay(m, withBreakdown)})
	}
	return out
}

type createTripResponse struct {
	Trip    *models.Trip `json:"trip"`
	Matches []matchView  `json:"matches"`
}

func (s *Server) handleCreateTrip(w http.ResponseWriter, r *http.Request) {
	var t models.Trip
	if err := decode(r, &t); err != nil {
		s.writeError(w, r, err)
		return
	}
	// identity is always assigned by the server
	t.ID = ""
	if user := r.Header.Get(UserHeader); user != "" {
		t.OwnerID = user
	}
	created, matches, err := s.matcher.CreateTrip(r.Context(), &t)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createTripResponse{Trip: created, Matches: viewsOf(matches, false)})
}

func (s *Server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	t, err := s.matcher.GetTrip(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCloseTrip(op func(ctx context.Context, tripID, actor string) (*models.Trip, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := r.Header.Get(UserHeader)
		if actor == "" {
			s.writeError(w, r, errMissingUser)
			return
		}
		t, err := op(r.Context(), mux.Vars(r)["id"], actor)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func (s *Server) handleTripMatches(w http.ResponseWriter, r *http.Request) {
	ms, err := s.matcher.MatchesForTrip(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewsOf(ms, wantBreakdown(r)))
}

func (s *Server) handleRunMatching(w http.ResponseWriter, r *http.Request) {
	ms, err := s.matcher.FindMatches(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewsOf(ms, wantBreakdown(r)))
}

type compatibilityRequest struct {
	TripA *models.Trip `json:"trip_a"`
	TripB *models.Trip `json:"trip_b"`
}

type compatibilityResponse struct {
	Score              float64               `json:"score"`
	Outcome            scoring.Outcome       `json:"outcome"`
	Viable             bool                  `json:"viable"`
	MatchType          models.MatchType      `json:"match_type,omitempty"`
	Breakdown          models.ScoreBreakdown `json:"breakdown"`
	RouteAnalysis      models.RouteAnalysis  `json:"route_analysis"`
	MeetingPoints      []models.MeetingPoint `json:"meeting_points,omitempty"`
	PreferencesPresent bool                  `json:"preferences_present"`
	Display            scoring.Display       `json:"display"`
}

func (s *Server) handleCompatibility(w http.ResponseWriter, r *http.Request) {
	var req compatibilityRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.TripA == nil || req.TripB == nil {
		s.writeError(w, r, badRequest("trip_a and trip_b are required"))
		return
	}
	for _, t := range []*models.Trip{req.TripA, req.TripB} {
		if t.Status == "" {
			t.Status = models.TripActive
		}
	}
	res, err := s.matcher.Evaluate(r.Context(), req.TripA, req.TripB)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m := res.Match()
	writeJSON(w, http.StatusOK, compatibilityResponse{
		Score:              res.Score,
		Outcome:            res.Outcome,
		Viable:             res.Viable(),
		MatchType:          res.MatchType,
		Breakdown:          res.Breakdown,
		RouteAnalysis:      res.Analysis,
		MeetingPoints:      res.MeetingPoints,
		PreferencesPresent: res.PreferencesPresent,
		Display:            scoring.NewDisplay(&m, true),
	})
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	m, err := s.matcher.GetMatch(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matchView{Match: m, Display: scoring.NewDisplay(m, wantBreakdown(r))})
}

var matchActions = map[string]models.MatchStatus{
	"view":    models.MatchViewed,
	"contact": models.MatchContacted,
	"accept":  models.MatchAccepted,
	"decline": models.MatchDeclined,
}

func (s *Server) handleMatchAction(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get(UserHeader)
	if actor == "" {
		s.writeError(w, r, errMissingUser)
		return
	}
	vars := mux.Vars(r)
	m, err := s.matcher.Transition(r.Context(), vars["id"], actor, matchActions[vars["action"]])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matchView{Match: m, Display: scoring.NewDisplay(m, false)})
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := s.matcher.Preferences(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	actor := r.Header.Get(UserHeader)
	if actor == "" {
		s.writeError(w, r, errMissingUser)
		return
	}
	if actor != userID {
		s.writeError(w, r, matcher.ErrForbidden)
		return
	}
	var p models.UserPreferences
	if err := decode(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	p.UserID = userID
	saved, err := s.matcher.UpdatePreferences(r.Context(), &p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, NewAPIError("not_ready", err.Error(), http.StatusServiceUnavailable))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

var upgrader = websocket.Upgrader{}

// handleWS keeps a notification channel open for a user until the client
// goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["user_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "user_id", id, "error", err)
		return
	}
	session := s.ws.Add(id, conn)
	defer s.ws.Remove(id, session)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

func wantBreakdown(r *http.Request) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get("breakdown"))
	return b
}
