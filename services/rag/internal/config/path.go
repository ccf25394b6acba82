package config

// ConfigPath is the default location of the service config file.
const ConfigPath = "config.yaml"
