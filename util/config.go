package util

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host            string   `yaml:"host"`
		HttpPort        int      `yaml:"httpPort"`
		Tenants         []string `yaml:"tenants"`
		Storage         string   `yaml:"storage"`
		StorePath       string   `yaml:"storePath"`
		DatabaseUrl     string   `yaml:"databaseUrl"`
		NodeName        string   `yaml:"nodeName"`
		NodeDescription string   `yaml:"nodeDescription"`
		DeliveryTimeout int      `yaml:"deliveryTimeout"`
		WithJournald    bool     `yaml:"withJournald"`
	}
}

// ReadConf loads config.yaml from the working directory, falling back to
// embedded defaults, then applies FIRM_* environment overrides.
func ReadConf() (*AppConfig, error) {
	c := &AppConfig{}

	buf, err := os.ReadFile(ConfigFileName)
	if err != nil {
		log.Printf("Config file not found at %s, using embedded defaults", ConfigFileName)
		buf = embeddedConfig
	}
	if err := yaml.Unmarshal(buf, c); err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	if v := os.Getenv("FIRM_HOST"); v != "" {
		c.Conf.Host = v
	}
	if v := os.Getenv("FIRM_HTTPPORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("Error parsing FIRM_HTTPPORT: %v", err)
		} else {
			c.Conf.HttpPort = port
		}
	}
	if v := os.Getenv("FIRM_TENANTS"); v != "" {
		tenants := strings.Split(v, ",")
		for i := range tenants {
			tenants[i] = strings.TrimSpace(tenants[i])
		}
		c.Conf.Tenants = tenants
	}
	if v := os.Getenv("FIRM_STORAGE"); v != "" {
		c.Conf.Storage = v
	}
	if v := os.Getenv("FIRM_STORE_PATH"); v != "" {
		c.Conf.StorePath = v
	}
	if v := os.Getenv("FIRM_DATABASE_URL"); v != "" {
		c.Conf.DatabaseUrl = v
	}
	if v := os.Getenv("FIRM_NODE_NAME"); v != "" {
		c.Conf.NodeName = v
	}
	if v := os.Getenv("FIRM_NODE_DESCRIPTION"); v != "" {
		c.Conf.NodeDescription = v
	}
	if v := os.Getenv("FIRM_DELIVERY_TIMEOUT"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("Error parsing FIRM_DELIVERY_TIMEOUT: %v", err)
		} else {
			c.Conf.DeliveryTimeout = seconds
		}
	}
	if os.Getenv("FIRM_WITH_JOURNALD") == "true" {
		c.Conf.WithJournald = true
	}

	// Tenant prefixes are compared verbatim against request URL prefixes,
	// so a trailing slash would never match.
	for i, tenant := range c.Conf.Tenants {
		c.Conf.Tenants[i] = strings.TrimRight(tenant, "/")
	}
	if len(c.Conf.Tenants) == 0 {
		return nil, fmt.Errorf("no tenants configured")
	}

	switch c.Conf.Storage {
	case "", "memory", "file", "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", c.Conf.Storage)
	}
	return c, nil
}
