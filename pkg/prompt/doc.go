// Package prompt resolves the system prompt that belongs to the active memory
// version and compares prompts across versions.
package prompt
