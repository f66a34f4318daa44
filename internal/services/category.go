package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"photorank-backend/internal/models"
	"photorank-backend/internal/repository"

	"github.com/go-playground/validator/v10"
)

var categoryNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("categoryname", func(fl validator.FieldLevel) bool {
		return categoryNamePattern.MatchString(fl.Field().String())
	})
	return v
}

// CreateCategoryRequest is the body of POST /categories
type CreateCategoryRequest struct {
	Name        string  `json:"name" validate:"required,min=2,max=40,categoryname"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Question    string  `json:"question" validate:"required,max=200"`
}

// CategoryService handles category-related business logic
type CategoryService struct {
	categoryRepo *repository.CategoryRepository
}

// NewCategoryService creates a new category service
func NewCategoryService(categoryRepo *repository.CategoryRepository) *CategoryService {
	return &CategoryService{categoryRepo: categoryRepo}
}

// Create validates and stores a category owned by ownerID
func (s *CategoryService) Create(ctx context.Context, ownerID int64, req CreateCategoryRequest) (*models.Category, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Question = strings.TrimSpace(req.Question)
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	c := &models.Category{
		Name:        req.Name,
		Description: req.Description,
		Question:    req.Question,
		OwnerID:     &ownerID,
	}
	if err := s.categoryRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// List returns all categories
func (s *CategoryService) List(ctx context.Context) ([]models.Category, error) {
	return s.categoryRepo.List(ctx)
}

// Details returns categories with vote totals and leaders
func (s *CategoryService) Details(ctx context.Context) ([]models.CategoryDetail, error) {
	return s.categoryRepo.Details(ctx)
}

// Get returns one category
func (s *CategoryService) Get(ctx context.Context, id int64) (*models.Category, error) {
	return s.categoryRepo.GetByID(ctx, id)
}
