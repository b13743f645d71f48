// Package rulegen derives procedural persona rules from episodic examples by
// asking a language model, then writes them as a procedural JSON file that the
// next procedural build picks up.
package rulegen
