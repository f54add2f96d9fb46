// Package config provides configuration loading for both the license server
// and the activation client.
//
// Configuration is read from an optional YAML file (licensegate.yaml, or the
// file named by LICENSEGATE_CONFIG_FILE) and then overlaid with environment
// variables using the LICENSEGATE prefix, so for example the request-signing
// secret is LICENSEGATE_SECURITY_SIGNING_SECRET.
//
// The rate-limit defaults follow the protocol profile: activation allows 10
// attempts per minute with a 15 minute block, check-in 30 per minute with a
// 5 minute block, and the global per-IP class 50 per minute with a 30 minute
// block.
package config
