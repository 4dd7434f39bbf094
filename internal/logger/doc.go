// Package logger wraps zap with the helpers every breathe-tracking process uses:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration and parsing from settings,
//   - key/value shortcuts (InfoKV, ErrorKV, etc.).
//
// Engines and services carry the logger in their context so every state
// transition is logged with the component name and the ids it concerns.
package logger
