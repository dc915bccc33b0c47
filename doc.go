/*
	A row oriented ETL engine.

	Code Organization:

	The pipeline package describes steps and the hops connecting them, and analyses the
	resulting graph. The transforms implementing each step type and the runtime executing
	them exist in this rowflow package.

	Other Concepts:

	Step -- A named instance of a transform type with its options.
	Each step runs in its own goroutine.

	Hop -- A bounded channel of rows from one step to another.
	A step may mark one outgoing hop as its error hop, rows failing conversion are sent there.

	Info input -- A hop a step reads completely before its main input, see StreamLookup.

	Pipeline Master -- Owns the transform registry and starts executing pipelines.
	Finished runs are handed to its reporters.
*/
package rowflow
