// Package config handles loading and validating Access Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (signing secrets, broker passwords) should be set
//     via environment variables
//   - The config file should have restricted permissions (0600)
//   - The access and refresh signing secrets are required, must be at
//     least 32 characters, and must differ from each other
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
