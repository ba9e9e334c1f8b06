// Package pdfingest downloads discovered PDF documents and lifts their text
// and tables into the document store. Extraction is two-stage: the embedded
// text layer first, positioned row reconstruction as a fallback.
package pdfingest
