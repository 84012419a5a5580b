// Package cnr holds the types shared by every stage of a case-record
// acquisition: the case reference, the request handed to the worker pool,
// the page outcome enum, and the record returned to callers.
package cnr
