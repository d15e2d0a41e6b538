package config

import (
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const redacted = "***REDACTED***"

// ConfigMiddleware exposes the running configuration over HTTP
type ConfigMiddleware struct {
	configManager *ConfigManager
}

// NewConfigMiddleware creates a new configuration middleware
func NewConfigMiddleware(configManager *ConfigManager) *ConfigMiddleware {
	return &ConfigMiddleware{
		configManager: configManager,
	}
}

// ConfigHandler returns the current configuration with secrets redacted
func (cm *ConfigMiddleware) ConfigHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		config := cm.configManager.GetConfig()
		if config == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "configuration not available"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"config":    Sanitize(config),
			"timestamp": time.Now().UTC(),
		})
	}
}

// ReloadHandler re-reads the configuration file
func (cm *ConfigMiddleware) ReloadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := cm.configManager.Reload(); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "failed to reload configuration",
				"details": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":   "configuration reloaded",
			"timestamp": time.Now().UTC(),
		})
	}
}

// RegisterRoutes mounts the configuration endpoints on an already protected group
func (cm *ConfigMiddleware) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/config", cm.ConfigHandler())
	rg.POST("/config/reload", cm.ReloadHandler())
}

// Sanitize converts the configuration to a map keyed by json names,
// replacing every non-empty `sensitive:"true"` field
func Sanitize(config *Config) map[string]interface{} {
	out, _ := sanitizeValue(reflect.ValueOf(config).Elem()).(map[string]interface{})
	return out
}

func sanitizeValue(v reflect.Value) interface{} {
	if v.Kind() != reflect.Struct || v.Type() == reflect.TypeOf(time.Time{}) {
		if d, ok := v.Interface().(time.Duration); ok {
			return d.String()
		}
		return v.Interface()
	}

	t := v.Type()
	out := make(map[string]interface{}, v.NumField())
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := strings.Split(field.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			name = field.Name
		}
		if field.Tag.Get("sensitive") == "true" {
			if v.Field(i).IsZero() {
				out[name] = ""
			} else {
				out[name] = redacted
			}
			continue
		}
		out[name] = sanitizeValue(v.Field(i))
	}
	return out
}
