// Command promptwheel is the CLI front-end for the PromptWheel
// autonomous code-improvement orchestrator.
package main

func main() {
	Execute()
}
