package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
)

// SMTPSecretsEnv names the environment variable consulted for the SMTP
// secrets file path when no path is configured.
const SMTPSecretsEnv = "RESONANCE_SMTP_SECRETS"

// SMTPSecrets holds mail delivery credentials. They are loaded from a
// separate file outside the sweep configuration so credentials never
// appear in source or in shareable config files.
type SMTPSecrets struct {
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	From     string   `json:"from"`
	To       []string `json:"to"`
}

// LoadSMTPSecrets reads SMTP credentials from the given JSON file. An
// empty path falls back to the RESONANCE_SMTP_SECRETS environment
// variable.
func LoadSMTPSecrets(path string) (*SMTPSecrets, error) {
	if path == "" {
		path = os.Getenv(SMTPSecretsEnv)
	}
	if path == "" {
		return nil, fmt.Errorf("no SMTP secrets path configured (set %s or smtp_secrets_path)", SMTPSecretsEnv)
	}

	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	secrets := &SMTPSecrets{}
	if err := json.Unmarshal(data, secrets); err != nil {
		return nil, fmt.Errorf("failed to parse secrets JSON: %w", err)
	}
	if err := secrets.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SMTP secrets: %w", err)
	}
	return secrets, nil
}

// Validate checks that the secrets are complete enough to send mail.
// A missing port defaults to 587 (SMTP submission with STARTTLS).
func (s *SMTPSecrets) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("smtp host must not be empty")
	}
	if s.Port == 0 {
		s.Port = 587 // default
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("smtp port must be between 1 and 65535, got %d", s.Port)
	}
	if s.Username == "" {
		return fmt.Errorf("smtp username must not be empty")
	}
	if s.Password == "" {
		return fmt.Errorf("smtp password must not be empty")
	}
	if s.From == "" {
		return fmt.Errorf("smtp from address must not be empty")
	}
	if len(s.To) == 0 {
		return fmt.Errorf("smtp recipient list must not be empty")
	}
	return nil
}

// Addr returns the host:port dial address for the SMTP server.
func (s *SMTPSecrets) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
