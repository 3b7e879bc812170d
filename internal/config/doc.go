// Package config provides configuration for the campusdesk server.
//
// Configuration is read from campusdesk.json in the working directory, if
// present, and then overlaid with CAMPUSDESK_* environment variables. The
// file is optional because the process supervisor supplies environment only.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "host": "0.0.0.0",
//	    "port": 8080,
//	    "shutdownTimeout": "5s"
//	  },
//	  "log": {
//	    "level": "info",
//	    "format": "json"
//	  },
//	  "toast": {
//	    "defaultDuration": "4s"
//	  },
//	  "persist": {
//	    "backend": "sqlite",
//	    "dsn": "/var/lib/campusdesk/state.db",
//	    "throttle": "1s",
//	    "whitelist": ["auth", "students"]
//	  },
//	  "metrics": {
//	    "enabled": true,
//	    "namespace": "campusdesk"
//	  },
//	  "tracing": {
//	    "endpoint": "http://otel-collector:4318"
//	  }
//	}
//
// # Environment
//
// Every field has a matching variable: section and field names upper-cased
// and joined with underscores, for example CAMPUSDESK_SERVER_PORT or
// CAMPUSDESK_PERSIST_WHITELIST=auth,students. S3 credentials are read from
// CAMPUSDESK_PERSIST_ACCESS_KEY_ID and CAMPUSDESK_PERSIST_SECRET_ACCESS_KEY
// only; they are never written to the file.
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    return err
//	}
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config
