// Package recipe turns a recipe description into bound, runnable units and
// executes them.
//
// Construction resolves the header image through the artifact repository,
// creates the hardware context, allocates internal buffers, binds kernel and
// host function handles and builds the Execution: an ordered list of runs
// partitioned into runlists of a single kind (npu or cpu). A run kind change
// in declaration order starts a new runlist.
//
// An NPU runlist starts out dispatching each run individually and switches,
// once, to a single hardware batch when the number of runs reaches the
// runlist threshold.
//
// Executing an Execution with more than one runlist goes through a task
// queue: each runlist's iteration is one task that executes and then waits
// the runlist, so runlist i+1 is issued only after runlist i completed,
// while the caller is free to continue. Faults inside a task are captured
// and returned by the next Wait.
package recipe
