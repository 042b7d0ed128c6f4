package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "server", "tunneld":
		return serverTemplate, nil
	case "client", "tunnelctl":
		return clientTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const serverTemplate = `listen_addr = ":8443"
admin_addr = ""
min_workers = 4
max_workers = 32
queue_size = 64
accept_timeout = "1s"
receive_timeout = "5s"
idle_timeout = "90s"
cipher = "aes-256-gcm"
# payload_key = "hex:..."  (or SECTUN_PAYLOAD_KEY / payload_key_file)
payload_key_file = "payload.key"
security_mode = "development"
tls_cert_file = "server.crt"
tls_key_file = "server.key"
tls_ca_file = "ca.crt"
tls_mutual = false
log_level = "info"
log_json = false
`

const clientTemplate = `server_addr = "localhost:8443"
cipher = "aes-256-gcm"
payload_key_file = "payload.key"
keepalive_interval = "30s"
auth_timeout = "5s"
connect_timeout = "10s"
receive_timeout = "5s"
max_connect_attempts = 3
security_mode = "development"
tls_verify = "strict"
tls_ca_file = "ca.crt"
tls_mutual = false
pinned_fingerprints = []
log_level = "info"
`
