package server

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/varoOP/clubgate/internal/consent"
	"github.com/varoOP/clubgate/internal/domain"
	"github.com/varoOP/clubgate/internal/warmer"
)

func (s *Server) runtimeConfig(c echo.Context) error {
	body, err := RuntimeConfigScript(s.cfg)
	if err != nil {
		return err
	}

	c.Response().Header().Set("Cache-Control", "no-cache")
	return c.Blob(http.StatusOK, "application/javascript; charset=utf-8", body)
}

type workerInfo struct {
	Enabled bool   `json:"enabled"`
	Version string `json:"version"`
	State   string `json:"state"`
}

// serviceWorker describes the worker controlling the site scope
func (s *Server) serviceWorker(c echo.Context) error {
	info := workerInfo{Version: s.cfg.Cache.Version, State: "uninstalled"}
	if s.deps.Registry != nil {
		info.Enabled = s.deps.Registry.Enabled()
		if w := s.deps.Registry.Active(); w != nil {
			info.Version = w.Version()
			info.State = w.State().String()
		}
	}

	payload, err := json.Marshal(info)
	if err != nil {
		return err
	}

	c.Response().Header().Set("Service-Worker-Allowed", "/")
	c.Response().Header().Set("Cache-Control", "no-cache")
	body := "self.__CLUBGATE_WORKER__ = " + string(payload) + ";\n"
	return c.Blob(http.StatusOK, "application/javascript; charset=utf-8", []byte(body))
}

func (s *Server) consentDecision(c echo.Context) error {
	if s.deps.Gate == nil {
		return echo.NewHTTPError(http.StatusNotFound, "consent disabled")
	}

	path := c.QueryParam("path")
	if path == "" {
		path = "/"
	}

	return c.JSON(http.StatusOK, s.deps.Gate.Evaluate(c.Request().Context(), c.Request(), path))
}

type acceptResponse struct {
	Decision consent.Decision `json:"decision"`
	Summary  warmer.Summary   `json:"summary"`
}

func (s *Server) consentAccept(c echo.Context) error {
	if s.deps.Gate == nil {
		return echo.NewHTTPError(http.StatusNotFound, "consent disabled")
	}

	decision, summary := s.deps.Gate.Accept(c.Request().Context(), c.Response())
	return c.JSON(http.StatusOK, acceptResponse{Decision: decision, Summary: summary})
}

func (s *Server) consentIgnore(c echo.Context) error {
	if s.deps.Gate == nil {
		return echo.NewHTTPError(http.StatusNotFound, "consent disabled")
	}

	return c.JSON(http.StatusOK, s.deps.Gate.Ignore(c.Response()))
}

func (s *Server) workerUnregister(c echo.Context) error {
	unregistered := false
	if s.deps.Registry != nil {
		unregistered = s.deps.Registry.Unregister()
	}
	return c.JSON(http.StatusOK, map[string]bool{"unregistered": unregistered})
}

func (s *Server) workerClear(c echo.Context) error {
	var deleted []string
	if s.deps.Registry != nil {
		var err error
		deleted, err = s.deps.Registry.ClearAll(c.Request().Context())
		if err != nil {
			s.log.Error().Err(err).Msg("could not clear caches")
			return echo.NewHTTPError(http.StatusInternalServerError, "could not clear caches")
		}
	}
	if deleted == nil {
		deleted = []string{}
	}
	return c.JSON(http.StatusOK, map[string][]string{"deleted": deleted})
}

func (s *Server) consentAccepted(r *http.Request) bool {
	return s.deps.Consent != nil && s.deps.Consent.Get(r) == domain.ConsentAccepted
}
