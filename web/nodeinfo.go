package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/firmsocial/firm/resource"
	"github.com/firmsocial/firm/store"
)

// NodeInfo20 represents the NodeInfo 2.0 schema
// See: https://nodeinfo.diaspora.software/schema.html
type NodeInfo20 struct {
	Version           string           `json:"version"`
	Software          NodeInfoSoftware `json:"software"`
	Protocols         []string         `json:"protocols"`
	Services          NodeInfoServices `json:"services"`
	Usage             NodeInfoUsage    `json:"usage"`
	OpenRegistrations bool             `json:"openRegistrations"`
	Metadata          map[string]any   `json:"metadata"`
}

type NodeInfoSoftware struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type NodeInfoServices struct {
	Inbound  []string `json:"inbound"`
	Outbound []string `json:"outbound"`
}

type NodeInfoUsage struct {
	Users NodeInfoUsers `json:"users"`
}

type NodeInfoUsers struct{}

// WellKnownNodeInfo represents the /.well-known/nodeinfo response
type WellKnownNodeInfo struct {
	Links []NodeInfoLink `json:"links"`
}

type NodeInfoLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// HandleNodeInfoIndex serves the discovery document pointing at the 2.0
// schema endpoint.
func HandleNodeInfoIndex(c *gin.Context) {
	jrd(c, http.StatusOK, WellKnownNodeInfo{
		Links: []NodeInfoLink{
			{
				Rel:  "http://nodeinfo.diaspora.software/ns/schema/2.0",
				Href: resource.Prefix(requestURL(c.Request)) + "/nodeinfo/2.0",
			},
		},
	})
}

// HandleNodeInfo serves NodeInfo 2.0. A tenant can override the metadata
// section with a stored document.
func HandleNodeInfo(c *gin.Context, deps *Deps) {
	if c.Param("version") != "2.0" {
		c.String(http.StatusNotFound, "only nodeinfo 2.0 supported")
		return
	}
	name := deps.NodeName
	if name == "" {
		name = "FIRM"
	}
	description := deps.NodeDescription
	if description == "" {
		description = "A FIRM server"
	}
	metadata := map[string]any{
		"nodeName":        name,
		"nodeDescription": description,
	}
	custom, err := deps.Store.QueryOne(c.Request.Context(), store.Criteria{
		"@prefix":      "urn:",
		"type":         resource.TypeNodeInfo,
		"attributedTo": resource.Prefix(requestURL(c.Request)),
	})
	if err != nil {
		renderError(c, err)
		return
	}
	if custom != nil {
		if m, ok := custom["metadata"].(map[string]any); ok {
			metadata = m
		}
	}
	c.JSON(http.StatusOK, NodeInfo20{
		Version:   "2.0",
		Software:  NodeInfoSoftware{Name: "firm", Version: deps.Version},
		Protocols: []string{"activitypub"},
		Services:  NodeInfoServices{Inbound: []string{}, Outbound: []string{}},
		Usage:     NodeInfoUsage{},
		Metadata:  metadata,
	})
}
