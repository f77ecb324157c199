// Package language normalizes track language tags found in container
// metadata.
//
// Containers carry ISO 639-2 codes (sometimes the bibliographic variants
// such as "ger"), ISO 639-1 codes or full BCP 47 tags. Everything is mapped
// to canonical BCP 47 through golang.org/x/text/language so tracks compare
// equal regardless of the source container.
package language
