// Package harness runs terminology scenarios end to end.
//
// A scenario describes chronologies by name, the coordinates to view them
// through, and queries with expectations. Run encodes the chronologies to
// the binary interchange format, imports the stream, round-trips the
// engine through an in-memory snapshot database and then answers each
// query from the reloaded engine. Every name maps to a UUID in the project
// namespace, so metadata names such as "path/master" refer to the
// bootstrapped metadata concepts.
//
// # Scenario Format
//
//	name: path_contradiction
//	description: "Two paths edit the same description"
//	chronologies:
//	  - concept: heart
//	    versions: [{}]
//	  - semantic: heart label
//	    assemblage: label
//	    referenced: heart
//	    type: string
//	    versions:
//	      - {time: 2000, path: path/a, value: "Heart"}
//	      - {time: 2000, path: path/b, value: "Cor"}
//	coordinates: |
//	  coordinate: both: paths: ["path/a", "path/b"]
//	queries:
//	  - resolve: heart label
//	    coordinate: both
//	    expect: {state: contradicted}
//
// Versions default to an active status, the next fixture time, the user
// author, the core module and the master path. A "master" coordinate and
// a "master" stated taxonomy exist unless the coordinates redefine them.
//
// # Golden Files
//
// RunWithGolden compares the rendered trace with
// testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
