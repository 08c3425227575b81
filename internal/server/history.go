package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	oplogdomain "github.com/smallbiznis/papermill/internal/oplog/domain"
	"github.com/smallbiznis/papermill/pkg/db/pagination"
)

func (s *Server) ListOperations(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.oplogSvc.List(c.Request.Context(), oplogdomain.ListRequest{
		UserID:     user.ID,
		Pagination: page,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
