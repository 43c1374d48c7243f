// Package repository defines the flat key/value document store contract
// with in-memory, filesystem and SQLite implementations.
package repository
