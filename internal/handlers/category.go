package handlers

import (
	"net/http"

	"photorank-backend/internal/middleware"
	"photorank-backend/internal/models"
	"photorank-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// CategoryHandler handles category-related HTTP requests
type CategoryHandler struct {
	categoryService *services.CategoryService
}

// NewCategoryHandler creates a new category handler
func NewCategoryHandler(categoryService *services.CategoryService) *CategoryHandler {
	return &CategoryHandler{categoryService: categoryService}
}

// List handles GET /api/v1/categories
func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categoryService.List(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if categories == nil {
		categories = []models.Category{}
	}
	respondJSON(w, categories, http.StatusOK)
}

// Details handles GET /api/v1/categories/details
func (h *CategoryHandler) Details(w http.ResponseWriter, r *http.Request) {
	details, err := h.categoryService.Details(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if details == nil {
		details = []models.CategoryDetail{}
	}
	respondJSON(w, details, http.StatusOK)
}

// Get handles GET /api/v1/categories/{id}
func (h *CategoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		respondError(w, "Invalid category id", http.StatusBadRequest)
		return
	}
	category, err := h.categoryService.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, category, http.StatusOK)
}

// Create handles POST /api/v1/categories
func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req services.CreateCategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	category, err := h.categoryService.Create(r.Context(), userID, req)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to create category")
		respondServiceError(w, err)
		return
	}

	log.Info().
		Int64("user_id", userID).
		Int64("category_id", category.ID).
		Str("name", category.Name).
		Msg("Category created")
	respondJSON(w, category, http.StatusCreated)
}
