// Package config provides configuration management for ciwarden.
//
// Configuration is loaded from a single directory. The default directory is
// ~/.config/ciwarden; commands accept --config-path to point elsewhere.
//
// # Configuration Directory
//
// The directory contains config.yaml. Relative data and workspace paths are
// resolved against it:
//
//	dataDir: data            # build status database
//	workspace:
//	  root: workspaces       # build checkouts
//	  pathTemplate: '{{ .Repo | replace "/" "_" }}/{{ .SHA | trunc 12 }}'
//	credentials:
//	  - name: github
//	    type: github
//	    tokenEnv: GITHUB_TOKEN
//	projects:
//	  - id: api
//	    repo: acme/api
//	    credential: github
//	    triggers:
//	      - type: commit
//	        branch: main
//	poll:
//	  interval: 1m
//	executor:
//	  workers: 4
//	metrics:
//	  address: 127.0.0.1:9090
//
// Tokens are never stored in the file. Each credential names the environment
// variable its token is read from.
//
// # Validation
//
// LoadConfig validates the whole file and reports every problem at once in a
// ConfigurationErrorCollection.
//
// # Reloading
//
// Watcher observes config.yaml with fsnotify and hands every successfully
// reloaded configuration to a callback. Invalid edits are logged and ignored.
package config
