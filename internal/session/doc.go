/*
Package session serializes access to conversation threads.

Turns on the same thread never interleave: a turn loads the thread's state,
runs the agent graph and checkpoints under one lock. Distinct threads proceed
concurrently. With a distributed locker configured, the guarantee extends
across server replicas that share a Redis store.
*/
package session
