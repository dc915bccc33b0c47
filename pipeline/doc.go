/*
	Provides an API for describing data pipelines as a graph of steps and hops.

	The definitions in this package only describe how steps are linked together,
	not the transforms executing them. A Graph checks a definition for unknown steps,
	cycles and info inputs that can never be drained before it is executed.
*/
package pipeline
