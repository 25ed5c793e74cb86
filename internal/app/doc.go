// Package app wires a recipe run together: it picks the device platform and
// artifact repository, loads the recipe (and profile), executes it, prints
// the report and optionally publishes it. It does not know about flags.
package app
