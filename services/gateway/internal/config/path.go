package config

// ConfigPath is the default location of the gateway config file.
const ConfigPath = "config.yaml"
