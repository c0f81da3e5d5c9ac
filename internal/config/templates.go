package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# AML transaction simulator configuration

[simulation]
# Run name recorded with every stored run
name = "amlsim"
# Number of steps to simulate (steps 0 .. steps-1)
steps = 30
# Base seed; each alert samples amounts from seed + alert_id
seed = 0
# Input files, relative paths are resolved against this directory
accounts_file = "accounts.csv"
alert_members_file = "alert_members.csv"

[output]
# Directory for alert_accounts.csv and transactions.csv
dir = "output"
# SQLite database holding run history
database = "amlsim.db"
# Write CSV reports after each run
write_csv = true
# Store runs, alerts and transactions in the database
persist = true

[logging]
# Level: debug, info, warn, error
level = "info"
console = true
# Rotated log file, defaults to ~/.config/amlsim/logs/amlsim.log
file = false
# file_path = "/var/log/amlsim/amlsim.log"
max_size = 100
max_backups = 7
max_age = 30
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, FileName+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}
