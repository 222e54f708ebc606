package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "willow", "willowctl":
		return willowTemplate, nil
	case "echo", "echoctl":
		return echoTemplate, nil
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

const willowTemplate = `url = "ws://localhost:5005/message"
verify_key = ""
account = 0
tick_interval = "16ms"
max_inbound_per_tick = 64
reconnect = false
headless = false
status_addr = ""
cors_origins = ["http://localhost:3000"]
history_path = "willow.history.toml"
history_limit = 1000
target_kind = "friend"
target_id = 0

[session]
connect_timeout = "5s"
handshake_timeout = "5s"
read_timeout = "0s"
write_timeout = "15s"
max_message_bytes = 8388608
security_mode = "development"

[session.backoff]
initial = "250ms"
multiplier = 2.0
max = "5s"
jitter = true

[session.tls]
enabled = false
mutual = false
cert_file = ""
key_file = ""
ca_file = ""
server_name = ""
insecure_skip_verify = false
`

const echoTemplate = `addr = ":5005"
path = "/message"
verify_key = ""
handshake_delay_ms = 0
mirai = false
bot_name = "echo"
tls_cert_file = ""
tls_key_file = ""
client_ca_file = ""
`
