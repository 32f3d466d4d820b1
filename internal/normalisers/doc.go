// Package normalisers provides implementations of the Normaliser interface
// for various artifact formats. Each normaliser knows how to extract
// UTF-8 text and a content fingerprint from a specific MIME type.
//
// Normalisers are registered with the NormaliserRegistry at startup.
package normalisers
