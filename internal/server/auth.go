package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"agriconnect/pkg/types"

	"github.com/sirupsen/logrus"
)

type sessionForm struct {
	Role     string `form:"role"`
	Name     string `form:"name"`
	State    string `form:"state"`
	Passcode string `form:"passcode"`
}

func parseRole(v string) (types.Role, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "farmer":
		return types.RoleFarmer, true
	case "official":
		return types.RoleOfficial, true
	}
	return "", false
}

func (s *Service) handlePostSession(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid form payload")
		return
	}

	var input sessionForm
	if err := decoder.Decode(&input, r.PostForm); err != nil {
		s.logger.WithError(err).Info("failed to decode session form")
		s.writeError(w, http.StatusBadRequest, "invalid form payload")
		return
	}

	role, ok := parseRole(input.Role)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "role must be Farmer or Official")
		return
	}

	name := strings.TrimSpace(input.Name)
	if !required(name) {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	if role == types.RoleOfficial && s.config.OfficialPasscode != "" &&
		subtle.ConstantTimeCompare([]byte(input.Passcode), []byte(s.config.OfficialPasscode)) != 1 {
		s.logger.WithField("name", name).Info("official sign-in with wrong passcode")
		s.writeError(w, http.StatusForbidden, "invalid passcode")
		return
	}

	actor := types.Actor{
		Role:  role,
		Name:  name,
		ID:    types.ActorID(role, name),
		State: strings.TrimSpace(input.State),
	}

	encoded, err := s.cookie.Encode(s.config.CookieName, actor)
	if err != nil {
		s.logger.WithError(err).Error("failed to encode session cookie")
		s.internalServerError(w)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.config.CookieName,
		Value:    encoded,
		HttpOnly: true,
		Secure:   s.config.Environment != "development",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   s.config.SessionMaxAgeSec,
		Path:     "/",
	})

	s.logger.WithFields(logrus.Fields{"actor_id": actor.ID, "role": actor.Role}).Info("actor signed in")
	s.writeJSON(w, http.StatusOK, actor)
}

func (s *Service) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, actorFromContext(r.Context()))
}

func (s *Service) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if actor, ok := s.sessionActor(r); ok {
		s.mrv.DiscardDraft(actor)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.config.CookieName,
		Value:    "",
		HttpOnly: true,
		Secure:   s.config.Environment != "development",
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   -1,
	})

	w.WriteHeader(http.StatusNoContent)
}
