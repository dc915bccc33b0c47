/*
 Package edge provides the bounded row channels that connect pipeline steps.
 Each edge carries rows of a single schema from one producing step to one consuming step,
 applying backpressure once its buffer is full.
*/
package edge
