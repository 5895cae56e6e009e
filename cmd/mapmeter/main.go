// Package main is the entry point for mapmeter, a usage and quota
// dashboard backend for metered Google Maps Platform APIs.
package main

func main() {
	Execute()
}
