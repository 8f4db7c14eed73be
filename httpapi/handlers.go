package httpapi

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/poiesic/cohorts/core"
	"github.com/poiesic/cohorts/storage"
)

var (
	locationKeys     = []string{"city", "state", "country"}
	demographicsKeys = []string{"education", "gender", "income", "age"}
)

type similarUsersResponse struct {
	Cohort string             `json:"cohort,omitempty"`
	Users  []core.SimilarUser `json:"users"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "cohorts",
		"time":    time.Now().UTC(),
	})
}

func (s *Server) handleUser(c echo.Context) error {
	email := strings.TrimSpace(c.QueryParam("email"))
	cookie := strings.TrimSpace(c.QueryParam("cookie"))

	profile, err := s.querier.Lookup(c.Request().Context(), email, cookie)
	if err != nil {
		return s.queryFailed(c, err)
	}
	return success(c, userView(profile))
}

func (s *Server) handleSimilarUsers(c echo.Context) error {
	limit, err := parseInt(c.QueryParam("limit"))
	if err != nil {
		return failValidation(c, map[string]string{"limit": "must be an integer"})
	}
	offset, err := parseInt(c.QueryParam("offset"))
	if err != nil {
		return failValidation(c, map[string]string{"offset": "must be an integer"})
	}

	result, err := s.querier.FindSimilar(c.Request().Context(), core.SimilarityQuery{
		Email:  strings.TrimSpace(c.QueryParam("email")),
		Cookie: strings.TrimSpace(c.QueryParam("cookie")),
		Cohort: strings.TrimSpace(c.QueryParam("cohort")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return s.queryFailed(c, err)
	}
	return success(c, similarUsersResponse{Cohort: result.Cohort, Users: result.Users})
}

// queryFailed maps query errors onto JSend responses.
func (s *Server) queryFailed(c echo.Context, err error) error {
	var qerr *core.QueryError
	switch {
	case errors.As(err, &qerr):
		return failValidation(c, map[string]string{qerr.Field: qerr.Error()})
	case errors.Is(err, core.ErrInvalidQuery):
		return failValidation(c, map[string]string{"query": err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		return failNotFound(c, err.Error())
	}
	s.logger.Error("query failed", "err", err, "uri", c.Request().RequestURI)
	return internalError(c, "Failed to answer query")
}

// parseInt reads an optional integer query parameter; blank is zero.
func parseInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// userView renders a profile with location and demographic fields grouped
// under their own keys. Embeddings are never rendered.
func userView(p *core.Profile) map[string]any {
	view := make(map[string]any, len(p.Fields)+8)
	location := map[string]any{}
	demographics := map[string]any{}

	for name, value := range p.Fields {
		view[name] = value.Any()
	}
	for _, name := range locationKeys {
		if v, ok := view[name]; ok {
			location[name] = v
			delete(view, name)
		}
	}
	for _, name := range demographicsKeys {
		if v, ok := view[name]; ok {
			demographics[name] = v
			delete(view, name)
		}
	}

	if p.Email != "" {
		view["email"] = p.Email
	}
	if p.Cookie != "" {
		view["cookie"] = p.Cookie
	}
	if p.Interests != nil {
		view["interests"] = p.Interests
	}
	if p.Cohorts != nil {
		view["cohort"] = p.Cohorts
	}
	if !p.CreatedAt.IsZero() {
		view["created_at"] = p.CreatedAt
	}
	view["location"] = location
	view["demographics"] = demographics
	return view
}
