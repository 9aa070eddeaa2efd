// Package config handles configuration loading, parsing, and validation from
// layered sources: built-in defaults, LLMUTILS_ environment variables, a YAML
// file and command-line flags. It produces one explicit Config value that is
// passed to the components needing it; there is no package-level state.
package config
