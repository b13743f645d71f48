// Package datavalidate checks the memory source files before they are built.
//
// Episodic and procedural files are validated against JSON schemas; semantic
// and prompt files only get content checks. Errors fail validation, warnings
// flag thin data.
package datavalidate
