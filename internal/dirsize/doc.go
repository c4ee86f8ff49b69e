// Package dirsize computes the total byte size of a directory subtree.
//
// A coordinator walks directories breadth-first and hands whole subtrees to a
// fixed pool of workers, each of which scans its subtree depth-first. Pending
// directories the pool cannot absorb are retained as compact arena handles and
// processed locally, so memory stays bounded even for very wide trees.
package dirsize
