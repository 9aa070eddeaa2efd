// Package resume computes which dataset items still need processing by
// comparing the dataset against the identifiers already present in the
// output log.
package resume
