package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/webafza/billing/internal/authorization"
	catalogdomain "github.com/webafza/billing/internal/catalog/domain"
)

func (s *Server) requireCatalogManage(c *gin.Context) bool {
	actor, ok := requireActor(c)
	if !ok {
		return false
	}
	if err := s.authzSvc.Authorize(c.Request.Context(), actor, authorization.ObjectCatalog, authorization.ActionCatalogManage); err != nil {
		AbortWithError(c, err)
		return false
	}
	return true
}

func (s *Server) listCategories(c *gin.Context) {
	if _, ok := requireActor(c); !ok {
		return
	}

	categories, err := s.catalogSvc.ListCategories(c.Request.Context(), catalogdomain.ListCategoryRequest{
		Slug: strings.TrimSpace(c.Query("slug")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (s *Server) createCategory(c *gin.Context) {
	if !s.requireCatalogManage(c) {
		return
	}

	var payload struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	category, err := s.catalogSvc.CreateCategory(c.Request.Context(), payload.Name)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (s *Server) listPackages(c *gin.Context) {
	if _, ok := requireActor(c); !ok {
		return
	}

	req := catalogdomain.ListPackageRequest{}
	if id, err := parseOptionalID("category_id", c.Query("category_id")); err != nil {
		AbortWithError(c, err)
		return
	} else if id != nil {
		req.CategoryID = *id
	}
	if raw := strings.TrimSpace(c.Query("active")); raw != "" {
		active := raw == "true"
		req.Active = &active
	}

	packages, err := s.catalogSvc.ListPackages(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": packages})
}

type packagePayload struct {
	CategoryID   string          `json:"category_id"`
	Name         string          `json:"name"`
	PriceMonthly decimal.Decimal `json:"price_monthly"`
	PriceAnnual  decimal.Decimal `json:"price_annual"`
	PriceOneTime decimal.Decimal `json:"price_one_time"`
	Active       *bool           `json:"active"`
}

func (s *Server) createPackage(c *gin.Context) {
	if !s.requireCatalogManage(c) {
		return
	}

	var payload packagePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	categoryID, err := parseOptionalID("category_id", payload.CategoryID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if categoryID == nil {
		AbortWithError(c, newValidationError("category_id", "required", "category_id is required"))
		return
	}

	pkg := catalogdomain.Package{
		CategoryID:   *categoryID,
		Name:         payload.Name,
		PriceMonthly: payload.PriceMonthly,
		PriceAnnual:  payload.PriceAnnual,
		PriceOneTime: payload.PriceOneTime,
		Active:       payload.Active == nil || *payload.Active,
	}
	created, err := s.catalogSvc.CreatePackage(c.Request.Context(), &pkg)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}
