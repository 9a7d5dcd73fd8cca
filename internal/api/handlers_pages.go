package api

import (
	"net/http"

	"github.com/lox/mobilitydash/internal/models"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	tbl, sel, rows, err := s.filtered(r, "index")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	data := buildIndexData(
		tbl.Localities(), sel, rows,
		tbl.MinDate().Format(models.DateLayout),
		tbl.MaxDate().Format(models.DateLayout),
	)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		s.logger.ErrorContext(r.Context(), "template error", "template", "index.html", "error", err)
	}
}
