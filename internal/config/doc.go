// Package config loads dashgate's configuration.
//
// Values are layered: built-in defaults, then an optional YAML file with
// ${VAR} expansion, then DASH_* environment variables. The command line
// applies its flags last and calls Validate.
//
//	env: prod
//	server:
//	  host: 0.0.0.0
//	  port: 8000
//	  api_root: /api/v1
//	storage:
//	  backend: bbolt
//	  path: /srv/dash-data/dashgate.db
//	auth:
//	  admin_user: admin
//	  admin_pass_hash: "${DASH_ADMIN_PASS_HASH}"
//	  secret_key: "${DASH_SECRET_KEY}"
//	  session_ttl: 24h
//	audit:
//	  webhook_url: https://siem.example/ingest
//	  webhook_header: "Authorization: Bearer ${SIEM_TOKEN}"
//	  webhook_timeout: 5s
//	logging:
//	  level: info
//	  format: json
//
// Durations use time.ParseDuration syntax.
package config
