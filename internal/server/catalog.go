package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetCatalog serves the current styles, rooms and pricing. Public; clients
// render pickers from it before the user signs in.
func (s *Server) GetCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, s.catalog.Get())
}
