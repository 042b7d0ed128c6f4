package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvPayloadKey = "SECTUN_PAYLOAD_KEY"
	EnvListenAddr = "SECTUN_LISTEN_ADDR"
	EnvAdminAddr  = "SECTUN_ADMIN_ADDR"
	EnvServerAddr = "SECTUN_SERVER_ADDR"
)

// LoadDotEnv loads KEY=VALUE pairs from each file into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}
