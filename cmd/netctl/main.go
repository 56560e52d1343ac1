// Command netctl exercises a remote service through the netlayer client:
// plain fetches, file downloads and websocket streams. The serve command
// runs a local fixture server to test against.
package main

func main() {
	Execute()
}
