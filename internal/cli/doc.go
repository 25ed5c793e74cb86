// Package cli parses command-line arguments, validates user input and maps
// failures to exit codes. It turns flags into the app's Config.
package cli
