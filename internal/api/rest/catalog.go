package rest

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type CellCatalog struct {
	Site        string    `yaml:"site" json:"site"`
	Description string    `yaml:"description" json:"description"`
	Cells       []CellRef `yaml:"cells" json:"cells"`
}

type CellRef struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Line        string `yaml:"line" json:"line"`
	Profile     string `yaml:"profile" json:"profile"`
	Description string `yaml:"description" json:"description"`
	Active      bool   `yaml:"active" json:"active"`
}

// GET /api/v1/catalog
func (s *Server) getCatalog(c *gin.Context) {
	catalogPath := s.lm.Config().Catalog.Path

	s.logger.Debug("Loading cell catalog", zap.String("path", catalogPath))

	if _, err := os.Stat(catalogPath); os.IsNotExist(err) {
		s.logger.Warn("Catalog file does not exist", zap.String("path", catalogPath))
		c.JSON(http.StatusNotFound, NewErrorResponse("CATALOG_404", "Catalog not found", catalogPath))
		return
	}

	data, err := os.ReadFile(catalogPath)
	if err != nil {
		s.logger.Error("Failed to read catalog",
			zap.String("path", catalogPath),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, NewErrorResponse("CATALOG_500", "Failed to read catalog", err.Error()))
		return
	}

	var catalog CellCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		s.logger.Error("Failed to parse catalog",
			zap.String("path", catalogPath),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, NewErrorResponse("CATALOG_500", "Failed to parse catalog", err.Error()))
		return
	}

	s.logger.Info("Catalog loaded", zap.Int("cell_count", len(catalog.Cells)))

	c.JSON(http.StatusOK, gin.H{
		"site":        catalog.Site,
		"description": catalog.Description,
		"cells":       catalog.Cells,
		"count":       len(catalog.Cells),
	})
}
