package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/lox/mobilitydash/internal/export"
	"github.com/lox/mobilitydash/internal/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	_, sel, rows, err := s.filtered(r, "export")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, rows); err != nil {
		s.writeError(w, r, err)
		return
	}

	name := fmt.Sprintf("mobility_%s_%s.xlsx", sel.Start.Format(models.DateLayout), sel.End.Format(models.DateLayout))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.Write(buf.Bytes())
}
