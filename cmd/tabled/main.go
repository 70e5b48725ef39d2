// Command tabled serves the tabled API and runs its maintenance tasks.
package main

func main() {
	Execute()
}
