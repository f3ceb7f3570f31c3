// Package config holds the application configuration: LLM endpoint and
// model settings, travel policy knobs (budget rule, allocation shares,
// research timeout, rejection route), agent loop bounds, session backend
// selection, notification credentials and free-form per-tool values.
//
// Resolution order is defaults, then an optional YAML file, then
// environment overrides (TRAVEOPS_*, OPENAI_API_KEY, TWILIO_*), with
// validation last.
package config
