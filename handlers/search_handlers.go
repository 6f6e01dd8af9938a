package handlers

import (
	"net/http"

	"github.com/surveyforge/surveyforge/httpx"
	"github.com/surveyforge/surveyforge/services"
)

func SearchContent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		httpx.BadRequest(w, "missing query parameter q")
		return
	}

	docs, err := services.Search.Query(r.Context(), q)
	if err != nil {
		httpx.Internal(w, "search.query", err, nil)
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"query":   q,
		"results": docs,
	})
}
