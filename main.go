/*
Mazeview is a live viewer for a grid-world Q-learning agent that runs in a separate simulation.
It loads the maze and the agent's action-value table over HTTP, steps or resets the agent on
request, and follows a running simulation over websocket, reconciling every reply and frame into
a single snapshot that the browser page, the terminal, and the recorder all draw from.

The sim command serves a reference simulation over the same interfaces, which is handy for
development: run `mazeview sim` in one terminal and `mazeview view` in another, then open
http://localhost:8080.
*/

package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
