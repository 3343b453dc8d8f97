package config

import "time"

// ServerConfig holds the REST API server configuration
type ServerConfig struct {
	// Host to bind the HTTP server
	Host string `mapstructure:"host"`

	// Port for the HTTP server
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// Request read timeout
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"required"`

	// Response write timeout
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"required"`
}
