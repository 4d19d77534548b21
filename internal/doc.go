// Package internal holds crypto-random helpers shared by the engine and
// its sub-packages. Nothing here is part of the public API.
package internal
