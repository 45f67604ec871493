package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"agriconnect/internal/mrv"
	"agriconnect/pkg/types"

	"github.com/alexedwards/flow"
	"github.com/go-playground/form/v4"
	"github.com/gorilla/securecookie"
	"github.com/sirupsen/logrus"
)

var decoder = form.NewDecoder()

type Service struct {
	logger logrus.FieldLogger
	config *types.Config
	mrv    *mrv.Service
	cookie *securecookie.SecureCookie

	handler http.Handler
	server  *http.Server
}

func New(
	config *types.Config,
	logger logrus.FieldLogger,
	workflow *mrv.Service,
) (*Service, error) {
	mux := flow.New()

	hashKey, err := base64.StdEncoding.DecodeString(config.CookieHashKey)
	if err != nil {
		return nil, fmt.Errorf("decode COOKIE_HASH_KEY: %w", err)
	}
	blockKey, err := base64.StdEncoding.DecodeString(config.CookieBlockKey)
	if err != nil {
		return nil, fmt.Errorf("decode COOKIE_BLOCK_KEY: %w", err)
	}

	if len(hashKey) == 0 {
		logger.Warn("COOKIE_HASH_KEY not set, sessions will not survive a restart")
		hashKey = securecookie.GenerateRandomKey(64)
		if len(blockKey) == 0 {
			blockKey = securecookie.GenerateRandomKey(32)
		}
	}

	cookie := securecookie.New(hashKey, blockKey)
	if config.SessionMaxAgeSec > 0 {
		cookie.MaxAge(config.SessionMaxAgeSec)
	}

	s := &Service{
		logger: logger,
		config: config,
		mrv:    workflow,
		cookie: cookie,
	}

	// flow only runs middleware on matched routes, so trailing slashes are
	// handled in front of the mux.
	s.handler = s.StripTrailingSlash(mux)
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", config.ServerPort),
		Handler:           s.handler,
		ReadTimeout:       time.Duration(config.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(config.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(config.WriteTimeoutSec) * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	s.buildRouter(mux)

	return s, nil
}

func (s *Service) Start() error {
	return s.server.ListenAndServe()
}

func (s *Service) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the router, mainly for httptest.
func (s *Service) Handler() http.Handler {
	return s.handler
}

func (s *Service) buildRouter(r *flow.Mux) {
	r.Use(s.LoggingMiddleware)

	r.HandleFunc("/healthz", s.handleHealth, http.MethodGet)
	r.HandleFunc("/session", s.handlePostSession, http.MethodPost)
	r.HandleFunc("/session", s.handleDeleteSession, http.MethodDelete)

	r.Group(func(r *flow.Mux) {
		r.Use(s.RequireSession)

		r.HandleFunc("/session", s.handleGetSession, http.MethodGet)

		r.HandleFunc("/analyze", s.handleAnalyze, http.MethodPost)
		r.HandleFunc("/analyze", s.handleGetAnalysis, http.MethodGet)
		r.HandleFunc("/submissions", s.handlePostSubmission, http.MethodPost)
		r.HandleFunc("/submissions", s.handleListSubmissions, http.MethodGet)
		r.HandleFunc("/submissions/:id", s.handleGetSubmission, http.MethodGet)
		r.HandleFunc("/submissions/:id/image", s.handleGetSubmissionImage, http.MethodGet)
		r.HandleFunc("/submissions/:id/verify", s.handleVerifySubmission, http.MethodPost)
		r.HandleFunc("/submissions/:id/reject", s.handleRejectSubmission, http.MethodPost)

		r.HandleFunc("/reports/verified.xlsx", s.handleVerifiedReport, http.MethodGet)
	})
}
