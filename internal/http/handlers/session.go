package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/buoy-console/internal/datasets"
	"github.com/yungbote/buoy-console/internal/gateway"
	httpMW "github.com/yungbote/buoy-console/internal/http/middleware"
)

var errNoSession = errors.New("no session attached")

func storeFrom(c *gin.Context) (*datasets.Store, error) {
	s := httpMW.SessionFrom(c)
	if s == nil || s.Store == nil {
		return nil, errNoSession
	}
	return s.Store, nil
}

// reportUnauthorized hands an unauthorized error to HandleUnauthorized. It
// reports whether err was one.
func reportUnauthorized(c *gin.Context, err error) bool {
	if _, ok := gateway.IsUnauthorized(err); !ok {
		return false
	}
	_ = c.Error(err)
	return true
}

func isNotFound(err error) bool {
	if errors.Is(err, datasets.ErrConfigNotFound) {
		return true
	}
	var ne *gateway.NetworkError
	return errors.As(err, &ne) && ne.StatusCode == 404
}
