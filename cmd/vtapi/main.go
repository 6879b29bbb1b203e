// Command vtapi manages a VTApi database and serves its read API.
//
// Usage:
//
//	vtapi init                     # create the public schema
//	vtapi serve --listen :8080     # start the HTTP read API
//	vtapi datasets list
//	vtapi datasets create <name>   # --location, --friendly, --description
//	vtapi datasets delete <name>
//	vtapi datasets truncate <name>
//	vtapi methods list
//	vtapi version
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
