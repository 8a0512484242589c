// Package server exposes the query and import APIs over HTTP.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/NadeemAtDure/dhis2-core/lib/apierror"
	"github.com/NadeemAtDure/dhis2-core/lib/config"
	"github.com/NadeemAtDure/dhis2-core/lib/itemstore"
	"github.com/NadeemAtDure/dhis2-core/lib/jobs"
	"github.com/NadeemAtDure/dhis2-core/lib/logging"
	"github.com/NadeemAtDure/dhis2-core/lib/metadb"
	"github.com/NadeemAtDure/dhis2-core/lib/trackerimport"
)

// Server ties the query and import layers to the HTTP surface.
type Server struct {
	cfg      *config.Config
	db       *sql.DB
	store    *itemstore.Store
	loader   *trackerimport.WorkContextLoader
	importer *trackerimport.Importer
	registry *jobs.Registry
}

// New assembles a server on top of an open metadata database.
func New(cfg *config.Config, db *metadb.DB) *Server {
	handle := db.Handle()
	return &Server{
		cfg:      cfg,
		db:       handle,
		store:    itemstore.NewStore(handle),
		loader:   trackerimport.NewWorkContextLoader(trackerimport.NewSQLReferenceSource(handle), nil),
		importer: trackerimport.NewImporter(handle, nil),
		registry: jobs.NewRegistry(),
	}
}

// requestUser is the authenticated caller, resolved once per request.
type requestUser struct {
	id       int64
	username string
}

type apiHandlerFunc func(user requestUser, w http.ResponseWriter, r *http.Request) error

// Router builds the route table. Split out from Run so tests can drive
// the handlers through httptest.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/api/dataItems", s.authenticated(s.handleDataItems)).Methods(http.MethodGet)
	r.Handle("/api/tracker/events", s.authenticated(s.handleImportEvents)).Methods(http.MethodPost)
	r.Handle("/api/tracker/events/{uid}", s.authenticated(s.handleGetEvent)).Methods(http.MethodGet)
	r.Handle("/api/tracker/jobs/{uid}/report", s.authenticated(s.handleJobReport)).Methods(http.MethodGet)
	r.Handle("/api/system/info", s.authenticated(s.handleSystemInfo)).Methods(http.MethodGet)
	return r
}

// Run serves until the listener fails.
func (s *Server) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	address := s.cfg.Listen.Address()
	logger.Info("listening", zap.String("address", address))

	httpServer := &http.Server{
		Addr:    address,
		Handler: s.Router(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	return httpServer.ListenAndServe()
}

// authenticated enforces basic auth and resolves the username against
// userinfo so sharing checks downstream see a database user id.
// Password verification is delegated to the fronting proxy.
func (s *Server) authenticated(handler apiHandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, _, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="dhis2"`)
			writeAPIError(w, r, apierror.New(
				apierror.WithHTTPCode(http.StatusUnauthorized),
				apierror.WithErrorID("unauthorized"),
				apierror.WithPublicMessage("Authentication required")))
			return
		}

		var userID int64
		err := s.db.QueryRowContext(r.Context(), `
			SELECT userinfoid FROM userinfo WHERE username = $1
		`, username).Scan(&userID)
		if err == sql.ErrNoRows {
			writeAPIError(w, r, apierror.New(
				apierror.WithHTTPCode(http.StatusUnauthorized),
				apierror.WithErrorID("unauthorized"),
				apierror.WithPublicMessage("Unknown user")))
			return
		}
		if err != nil {
			writeAPIError(w, r, apierror.AsAPIError(err))
			return
		}

		user := requestUser{id: userID, username: username}
		if err := handler(user, w, r); err != nil {
			writeAPIError(w, r, apierror.AsAPIError(err))
		}
	})
}

func writeAPIError(w http.ResponseWriter, r *http.Request, apiErr apierror.APIError) {
	logger := logging.FromContext(r.Context())

	internal := apiErr.InternalErrorDetail()
	logger.Info("request failed",
		zap.String("path", r.URL.Path),
		zap.Int("status", apiErr.HTTPStatusCode()),
		zap.String("errorId", internal.ErrorID),
		zap.String("message", internal.Message))

	writeJSON(w, apiErr.HTTPStatusCode(), map[string]interface{}{
		"httpStatusCode": apiErr.HTTPStatusCode(),
		"status":         "ERROR",
		"error":          apiErr.PublicErrorDetail(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
