// Package config handles loading and validating gallery core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (session secret, broker passwords, tokens) should be set
//     via environment variables
//   - The config file should have restricted permissions (0600)
//   - The session secret signs every session cookie and must be at least 32 characters
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Media.Root)
package config
