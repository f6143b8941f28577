package web

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/firmsocial/firm/resource"
	"github.com/firmsocial/firm/store"
	"github.com/firmsocial/firm/util"
)

// resourcePattern validates webfinger resource identifiers such as
// acct:user@host or plain URIs.
var resourcePattern = regexp.MustCompile(`(?:.*?):[@~]?([^@]+)@?(.*)`)

// HandleWebfinger resolves a resource query to a JRD document. Identifiers
// that are not stored directly are matched against actor aliases
// (alsoKnownAs) within the requesting tenant.
func HandleWebfinger(c *gin.Context, deps *Deps) {
	ctx := c.Request.Context()
	values := c.Request.URL.Query()["resource"]
	if len(values) == 0 {
		c.String(http.StatusBadRequest, "missing resource param")
		return
	}
	if len(values) > 1 {
		c.String(http.StatusBadRequest, "multiple resource params not supported")
		return
	}
	resourceURI := values[0]
	m := resourcePattern.FindStringSubmatch(resourceURI)
	if m == nil {
		c.String(http.StatusBadRequest, "invalid resource format")
		return
	}
	if strings.HasPrefix(resourceURI, "acct:") {
		if ok, reason := util.IsValidWebFingerUsername(m[1]); !ok {
			c.String(http.StatusBadRequest, reason)
			return
		}
	}

	var res resource.Resource
	var err error
	if resource.IsHTTPURI(resourceURI) {
		res, err = deps.Store.Get(ctx, resourceURI)
		if err != nil {
			renderError(c, err)
			return
		}
	}
	if res == nil {
		res, err = deps.Store.QueryOne(ctx, store.Criteria{
			"@prefix":     resource.Prefix(requestURL(c.Request)),
			"alsoKnownAs": resourceURI,
		})
		if err != nil {
			renderError(c, err)
			return
		}
	}
	if res == nil {
		c.Status(http.StatusNotFound)
		return
	}

	jrd(c, http.StatusOK, map[string]any{
		"subject": resourceURI,
		"links": []any{
			map[string]any{
				"rel":  "self",
				"type": resource.ContentTypeActivityJSON,
				"href": res["id"],
				"properties": map[string]any{
					"https://www.w3.org/ns/activitystreams#type": res["type"],
				},
			},
		},
	})
}
