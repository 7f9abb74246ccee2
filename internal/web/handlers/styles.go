package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/stylemate/internal/catalog"
)

// StylesHandler serves the style catalog.
type StylesHandler struct {
	catalog *catalog.Catalog
}

// NewStylesHandler creates a new styles handler
func NewStylesHandler(cat *catalog.Catalog) *StylesHandler {
	return &StylesHandler{catalog: cat}
}

// StyleInfo is a face shape with its composable style keys.
type StyleInfo struct {
	*catalog.Shape
	Styles []string `json:"styles"`
}

// StylesResponse lists the whole catalog.
type StylesResponse struct {
	Shapes []StyleInfo     `json:"shapes"`
	Tones  []*catalog.Tone `json:"tones"`
}

func styleInfo(s *catalog.Shape) StyleInfo {
	return StyleInfo{
		Shape:  s,
		Styles: []string{catalog.StyleKey(s.Name, catalog.Short), catalog.StyleKey(s.Name, catalog.Long)},
	}
}

// List returns all shapes and tones in catalog order.
func (h *StylesHandler) List(w http.ResponseWriter, r *http.Request) {
	shapes := h.catalog.Shapes()
	resp := StylesResponse{
		Shapes: make([]StyleInfo, 0, len(shapes)),
		Tones:  h.catalog.Tones(),
	}
	for _, s := range shapes {
		resp.Shapes = append(resp.Shapes, styleInfo(s))
	}
	respondJSON(w, http.StatusOK, resp)
}

// Get returns one face shape.
func (h *StylesHandler) Get(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	s, err := h.catalog.Shape(category)
	if err != nil {
		respondError(w, http.StatusNotFound, "style category not found")
		return
	}
	respondJSON(w, http.StatusOK, styleInfo(s))
}
