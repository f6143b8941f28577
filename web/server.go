package web

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/firmsocial/firm/ap"
	"github.com/firmsocial/firm/auth"
	"github.com/firmsocial/firm/resource"
	"github.com/firmsocial/firm/store"
)

// maxActivitySize bounds POSTed activity bodies.
const maxActivitySize = 1 * 1024 * 1024

// Deps carries the wired services the HTTP layer dispatches into.
type Deps struct {
	Service         *ap.Service
	Store           store.Store
	Authenticator   auth.Authenticator
	Version         string
	NodeName        string
	NodeDescription string
}

// Router builds the gin engine: discovery endpoints plus a catch-all that
// forwards ActivityPub GET/POST traffic to the dispatch service.
func Router(deps *Deps) *gin.Engine {
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	g.GET("/.well-known/webfinger", func(c *gin.Context) {
		HandleWebfinger(c, deps)
	})
	g.GET("/.well-known/nodeinfo", func(c *gin.Context) {
		HandleNodeInfoIndex(c)
	})
	g.GET("/nodeinfo/:version", func(c *gin.Context) {
		HandleNodeInfo(c, deps)
	})

	g.NoRoute(func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodPost:
			handleActivityPub(c, deps)
		default:
			c.Status(http.StatusMethodNotAllowed)
		}
	})
	return g
}

// requestURL reconstructs the canonical request URL, honoring a reverse
// proxy's X-Forwarded-Proto.
func requestURL(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	return scheme + "://" + r.Host + r.URL.Path
}

func handleActivityPub(c *gin.Context, deps *Deps) {
	ctx := c.Request.Context()
	principal, err := deps.Authenticator.Authenticate(ctx, c.Request)
	if err != nil {
		var authErr *auth.AuthenticationError
		if errors.As(err, &authErr) {
			c.String(http.StatusBadRequest, authErr.Message)
		} else {
			log.Printf("Web: authentication failed: %v", err)
			c.String(http.StatusInternalServerError, "authentication failure")
		}
		return
	}

	req := &ap.Request{
		Method:    c.Request.Method,
		URL:       requestURL(c.Request),
		Principal: principal,
	}
	if c.Request.Method == http.MethodPost {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxActivitySize))
		if err != nil {
			c.String(http.StatusBadRequest, "failed to read body")
			return
		}
		if err := json.Unmarshal(body, &req.Activity); err != nil {
			c.String(http.StatusBadRequest, "invalid activity json")
			return
		}
	}

	resp, err := deps.Service.ProcessRequest(ctx, req)
	if err != nil {
		renderError(c, err)
		return
	}
	if resp.Location != "" {
		c.Header("Location", resp.Location)
	}
	if resp.Resource != nil {
		body, err := json.Marshal(resp.Resource)
		if err != nil {
			c.String(http.StatusInternalServerError, "failed to render resource")
			return
		}
		c.Data(resp.Status, resource.ContentTypeActivityJSON+"; charset=utf-8", body)
		return
	}
	c.String(resp.Status, resp.Text)
}

func renderError(c *gin.Context, err error) {
	var statusErr *ap.StatusError
	if errors.As(err, &statusErr) {
		c.String(statusErr.Code, statusErr.Reason)
		return
	}
	log.Printf("Web: %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	c.String(http.StatusInternalServerError, "internal error")
}

func jrd(c *gin.Context, status int, doc any) {
	body, err := json.Marshal(doc)
	if err != nil {
		c.String(http.StatusInternalServerError, "failed to render document")
		return
	}
	c.Data(status, resource.ContentTypeJRD+"; charset=utf-8", body)
}
