// Command ideaengine runs the topic-and-stance idea engine: its REST
// API server, and one-off admin jobs like recluster.
package main

func main() {
	Execute()
}
