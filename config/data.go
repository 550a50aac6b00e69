package config

import (
	"os"
	"path/filepath"
	"strings"
)

const envPrefix = "JPG2PNG_"

// GetDataDir returns the directory holding the ledger and credentials
// databases. Priority: JPG2PNG_DATA_DIR environment variable > "./data".
// It reads the environment on every call so a .env file loaded at startup
// is honoured.
func GetDataDir() string {
	if dir := os.Getenv(envPrefix + "DATA_DIR"); dir != "" {
		return dir
	}
	return "./data"
}

// GetCredentialsDBPath returns the full path to the credentials database.
// Path: {DATA_DIR}/credentials.db
func GetCredentialsDBPath() string {
	return filepath.Join(GetDataDir(), "credentials.db")
}

// GetFailuresDBPath returns the full path to the failures database.
// Path: {DATA_DIR}/failures.db
func GetFailuresDBPath() string {
	return filepath.Join(GetDataDir(), "failures.db")
}

// GetSuccessDBPath returns the full path to the success database.
// Path: {DATA_DIR}/success.db
func GetSuccessDBPath() string {
	return filepath.Join(GetDataDir(), "success.db")
}

// GetDirectServeBaseDir returns the base directory for the directServe
// publish backend. Configurable via JPG2PNG_SERVE_DIR, defaults to "./serve".
func GetDirectServeBaseDir() string {
	if dir := os.Getenv(envPrefix + "SERVE_DIR"); dir != "" {
		return dir
	}
	return "./serve"
}

// GetLogFile returns the error log path used when -log-file is not given.
func GetLogFile() string {
	return os.Getenv(envPrefix + "LOG_FILE")
}

// GetStatusAddr returns the status server address used when -status-addr
// is not given. Empty disables the server.
func GetStatusAddr() string {
	return os.Getenv(envPrefix + "STATUS_ADDR")
}

// GetManifestSecret returns the HMAC key for signed manifests.
func GetManifestSecret() []byte {
	if s := os.Getenv(envPrefix + "MANIFEST_SECRET"); s != "" {
		return []byte(s)
	}
	return nil
}

// backendFields maps upper-cased env suffixes onto access info keys.
var backendFields = map[string]string{
	"ACCESSKEY":       "accessKey",
	"SECRETKEY":       "secretKey",
	"REGION":          "region",
	"BUCKET":          "bucket",
	"ENDPOINT":        "endpoint",
	"FOLDER":          "folder",
	"CREDENTIALSJSON": "credentialsJSON",
	"HOST":            "host",
	"PORT":            "port",
	"USER":            "user",
	"PASSWORD":        "password",
	"PRIVATEKEY":      "privateKey",
	"REMOTEDIR":       "remoteDir",
	"HOSTKEY":         "hostKey",
	"BASEDIR":         "baseDir",
}

// BackendEnv collects JPG2PNG_<BACKEND>_<FIELD> variables for a publish
// backend. Underscores inside FIELD are ignored, so ACCESS_KEY and
// ACCESSKEY both map to accessKey. Unknown fields are kept lower-cased.
func BackendEnv(backend string) map[string]string {
	prefix := envPrefix + strings.ToUpper(backend) + "_"
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) || value == "" {
			continue
		}
		field := strings.ReplaceAll(strings.TrimPrefix(name, prefix), "_", "")
		if key, known := backendFields[field]; known {
			out[key] = value
		} else {
			out[strings.ToLower(field)] = value
		}
	}
	return out
}
