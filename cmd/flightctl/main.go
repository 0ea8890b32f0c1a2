// flightctl is the command-line client for the flight assistant.
package main

func main() {
	Execute()
}
