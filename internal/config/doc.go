// Package config handles configuration loading for chowline.
//
// Configuration is loaded from YAML files with environment variable
// expansion (${VAR_NAME} syntax) and time.ParseDuration parsing for
// duration fields such as assistant.poll_interval.
//
// Example:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
//	auth:
//	  token: "${CHOWLINE_TOKEN}"
//
//	database:
//	  path: "/var/lib/chowline/chowline.db"
//
//	assistant:
//	  base_url: "https://api.openai.com"
//	  api_key: "${OPENAI_API_KEY}"
//	  model: "gpt-4o-mini"
//	  poll_interval: "750ms"
//	  poll_max_attempts: 240
//
//	imagery:
//	  workers: 5
//	  batch_timeout: "2m"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
