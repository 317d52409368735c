package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bravemoney/bravemoney"
	"github.com/bravemoney/bravemoney/api/middleware"
	"github.com/bravemoney/bravemoney/internal/apierror"
)

type Api struct {
	engine *bravemoney.Bravemoney
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.GET("/balance", a.GetBalance)
	router.POST("/credits", a.Credit)
	router.POST("/debits", a.Debit)

	router.POST("/transfers", a.CreateTransfer)
	router.POST("/transfers/recover", a.RecoverTransfers)

	router.GET("/account", a.GetAccount)
	router.POST("/links", a.CreateLink)
	router.DELETE("/links", a.DeleteLink)

	return a.router
}

func NewAPI(b *bravemoney.Bravemoney) *Api {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	r.Use(middleware.IdentityMiddleware())

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{engine: b, router: r}
}

// renderResult writes an engine result with the HTTP status its outcome maps
// to. Business failures keep the full result body so clients can show the
// current ledger state alongside the error.
func renderResult(c *gin.Context, result *bravemoney.Result, successStatus int) {
	if result.Ok {
		c.JSON(successStatus, result)
		return
	}
	c.JSON(apierror.MapErrorCodeToHTTPStatus(result.Code), result)
}

// renderError maps an operation error. A missing identity is the caller's
// fault; anything else is an internal failure.
func renderError(c *gin.Context, err error) {
	if err == bravemoney.ErrNoIdentity {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
}
