// Package graph provides read-only queries over a committed wiring.
//
// A Graph is a snapshot: building one from the container's current wiring
// never blocks class loading or resolution, and later commits do not
// change it. Queries support:
//
//   - direct and transitive providers and dependents of a revision
//   - wire paths between revisions
//   - explaining why a package is wired to a provider
//   - diffing two wiring generations
//
// # Building a Graph
//
//	g := graph.Build(c.Wiring())
//
// # Querying the Graph
//
//	// Everything a refresh of a would touch
//	closure := g.TransitiveDependents(graph.KeyOf(a.Revision()))
//
//	// Why is com.example.api wired where it is?
//	explanations, _ := g.Explain("com.example.api")
//
// # Output Formats
//
//	jsonBytes, _ := g.ToJSON()
//	dotString := g.ToDOT()
//	textString := g.ToText()
package graph
