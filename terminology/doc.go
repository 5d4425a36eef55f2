// Package terminology looks up HL7 v2 code tables.
//
// Tables are loaded from FHIR R4 CodeSystems such as
// http://terminology.hl7.org/CodeSystem/v2-0001; the table id is the part of
// the URL after "v2-".
//
// Example usage:
//
//	tables := terminology.NewInMemory()
//	if _, err := tables.LoadEmbedded(); err != nil {
//		return err
//	}
//	ok, err := tables.Contains("0001", "F")
//
// Wrap a Lookup in Cached when it is backed by something slower than memory.
package terminology
