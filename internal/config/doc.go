// Package config loads relay configuration.
//
// Sources, later ones winning:
//   - optional YAML file, with ${VAR} environment interpolation
//   - environment variables (a .env file in the working directory is loaded first)
//   - built-in defaults for anything still unset
package config
