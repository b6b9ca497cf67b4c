// Twinscape - scene adapter tooling for Azure Digital Twins
package main

func main() {
	Execute()
}
