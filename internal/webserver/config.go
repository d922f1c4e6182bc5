package webserver

import (
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// WebserverConfig holds the configuration for the webserver.
type WebserverConfig struct {
	ListenTo           string
	CorsAllowedOrigins []string
	MaxUploadBytes     int64
}

// NewWebserverConfig initializes the webserver configuration from environment variables.
func NewWebserverConfig() (*WebserverConfig, error) {
	config := &WebserverConfig{}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	config.ListenTo = ":" + port

	corsAllowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if corsAllowedOrigins != "" {
		for _, origin := range strings.Split(corsAllowedOrigins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				config.CorsAllowedOrigins = append(config.CorsAllowedOrigins, origin)
			}
		}
	}

	maxUploadMB, err := strconv.ParseInt(os.Getenv("MAX_UPLOAD_MB"), 10, 64)
	if err != nil || maxUploadMB <= 0 {
		maxUploadMB = 512
		logrus.Infof("Invalid or missing MAX_UPLOAD_MB. Defaulting to %d MB.", maxUploadMB)
	}
	config.MaxUploadBytes = maxUploadMB << 20

	return config, nil
}
